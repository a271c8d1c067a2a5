package logger

import (
	"bytes"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// lineWriter gom output theo dòng, mỗi dòng là một entry logrus
type lineWriter struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	logger *logrus.Logger
	level  logrus.Level
	source string
}

// NewStdLogger trả về *log.Logger ghi vào logger có tên name ở level cho trước.
// Dùng cho các thư viện chỉ nhận *log.Logger (vd. http.Server.ErrorLog).
func NewStdLogger(name, source string, level logrus.Level) *log.Logger {
	return log.New(newLineWriter(GetLogger(name), source, level), "", 0)
}

func newLineWriter(l *logrus.Logger, source string, level logrus.Level) *lineWriter {
	return &lineWriter{logger: l, level: level, source: source}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err == io.EOF {
			w.buf.WriteString(line)
			break
		}
		line = strings.TrimRight(line, "\r\n")
		if line != "" {
			w.logger.WithField("source", w.source).Log(w.level, line)
		}
	}
	return len(p), nil
}
