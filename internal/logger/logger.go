package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// TimestampFormat формат времени во всех логах
const TimestampFormat = "2006-01-02 15:04:05"

// serviceHook добавляет имя сервиса в каждую запись, чтобы логи трех
// бинарников можно было разделить после сбора
type serviceHook struct {
	service string
}

func (h serviceHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h serviceHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["service"]; !ok {
		entry.Data["service"] = h.service
	}
	return nil
}

// New создает новый настроенный логгер
func New(level, service string) *logrus.Logger {
	return NewWithOutput(level, service, os.Stdout)
}

// NewWithOutput то же, что New, с указанным выводом
func NewWithOutput(level, service string, out io.Writer) *logrus.Logger {
	logger := logrus.New()

	// Установка формата вывода
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: TimestampFormat,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	// Установка уровня логирования
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if service != "" {
		logger.AddHook(serviceHook{service: service})
	}

	logger.SetOutput(out)

	return logger
}

// WithOperation поля операции для логов ее жизненного цикла
func WithOperation(logger *logrus.Logger, id, kind, owner string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"operation_id": id,
		"kind":         kind,
		"owner":        owner,
	})
}
