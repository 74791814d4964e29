package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/42wim/matrixbotd/bot"
	"github.com/42wim/matrixbotd/bridge"
	"github.com/42wim/matrixbotd/bridge/matrix"
	"github.com/42wim/matrixbotd/config"
	"github.com/google/gops/agent"
	prefixed "github.com/matterbridge/logrus-prefixed-formatter"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

const (
	version     = "0.1.0"
	defaultConf = "config.json"
	envConfig   = "MATRIXBOTD_CONFIG"
)

var (
	logger  *logrus.Entry
	githash string
)

func main() {
	os.Exit(run())
}

func run() int {
	ourlog := logrus.New()
	ourlog.SetFormatter(&prefixed.TextFormatter{PrefixPadding: 13, DisableColors: true, FullTimestamp: true})
	logger = ourlog.WithFields(logrus.Fields{"prefix": "main"})

	flagConfig := flag.String("conf", "", "config file (default $"+envConfig+" or "+defaultConf+")")
	flagDebug := flag.Bool("debug", false, "enable debug logging")
	flagTrace := flag.Bool("trace", false, "enable trace logging")
	flagGops := flag.Bool("gops", false, "enable gops agent")
	flagVersion := flag.Bool("version", false, "show version")
	flag.Parse()

	if *flagVersion {
		fmt.Printf("version: %s %s\n", version, githash)
		return 0
	}

	if *flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			logger.Errorf("failed to start gops agent: %s", err)
		}
		defer agent.Close()
	}

	cfgFile := *flagConfig
	if cfgFile == "" {
		cfgFile = os.Getenv(envConfig)
	}

	if cfgFile == "" {
		cfgFile = defaultConf
	}

	config.Logger = logger

	v, err := config.LoadConfig(cfgFile)
	if err != nil {
		logger.Error(err)
		return 1
	}

	cfg, err := config.Parse(v)
	if err != nil {
		logger.Error(err)
		return 1
	}

	if *flagDebug {
		cfg.Debug = true
	}

	if *flagTrace {
		cfg.Trace = true
	}

	if cfg.Debug {
		logger.Info("enabling debug")
		ourlog.SetLevel(logrus.DebugLevel)
	}

	if cfg.Trace {
		logger.Info("enabling trace")
		ourlog.SetLevel(logrus.TraceLevel)
	}

	bot.SetLogger(ourlog.WithFields(logrus.Fields{"prefix": "bot"}))

	logger.Infof("running version %s %s", version, githash)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bot.New(cfg, newMatrix, os.Stdout)
	if err := b.Run(ctx); err != nil {
		logger.Error(err)
		return 1
	}

	logger.Info("shutting down")

	return 0
}

func newMatrix(cfg config.BotConfig) (bridge.Bridger, error) {
	return matrix.New(cfg)
}
