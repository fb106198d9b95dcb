// Package notify holds the user-facing notification sinks handed to the cart facade.
package notify

import (
	"sync"

	"go.uber.org/zap"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

type Notification struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Recorder buffers notifications so a request handler can return them as toasts.
type Recorder struct {
	m     sync.Mutex
	items []Notification
}

func NewRecorder() *Recorder {
	return &Recorder{items: []Notification{}}
}

func (r *Recorder) Success(message string) {
	r.add(LevelSuccess, message)
}

func (r *Recorder) Error(message string) {
	r.add(LevelError, message)
}

func (r *Recorder) add(level Level, message string) {
	r.m.Lock()
	defer r.m.Unlock()
	r.items = append(r.items, Notification{Level: level, Message: message})
}

func (r *Recorder) Notifications() []Notification {
	r.m.Lock()
	defer r.m.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

type Logger struct {
	logger *zap.Logger
}

func NewLogger(logger *zap.Logger) *Logger {
	return &Logger{logger: logger}
}

func (l *Logger) Success(message string) {
	l.logger.Info("cart notification", zap.String("level", string(LevelSuccess)), zap.String("message", message))
}

func (l *Logger) Error(message string) {
	l.logger.Info("cart notification", zap.String("level", string(LevelError)), zap.String("message", message))
}

// Sink is anything that can show a notification.
type Sink interface {
	Success(message string)
	Error(message string)
}

type tee []Sink

// Tee sends every notification to all sinks in order.
func Tee(sinks ...Sink) Sink {
	return tee(sinks)
}

func (t tee) Success(message string) {
	for _, s := range t {
		s.Success(message)
	}
}

func (t tee) Error(message string) {
	for _, s := range t {
		s.Error(message)
	}
}
