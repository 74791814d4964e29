package bot

import (
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithFields(logrus.Fields{"prefix": "bot"})

func SetLogger(l *logrus.Entry) {
	logger = l
}
