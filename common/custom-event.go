package common

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin/render"
)

type stringWriter interface {
	io.Writer
	writeString(string) (int, error)
}

type stringWrapper struct {
	io.Writer
}

func (w stringWrapper) writeString(str string) (int, error) {
	return w.Writer.Write([]byte(str))
}

func checkWriter(writer io.Writer) stringWriter {
	if w, ok := writer.(stringWriter); ok {
		return w
	}
	return stringWrapper{writer}
}

var contentType = []string{"text/event-stream"}
var noCache = []string{"no-cache"}

var fieldReplacer = strings.NewReplacer(
	"\n", "\\n",
	"\r", "\\r")

var dataReplacer = strings.NewReplacer(
	"\n", "\ndata:",
	"\r", "\\r")

// CustomEvent renders one server-sent event. Unlike gin's sse render it
// leaves Data untouched apart from newline escaping, so pre-formatted
// "data: {...}" payloads pass through byte-exact.
type CustomEvent struct {
	Event string
	Id    string
	Retry uint
	Data  any
}

func encode(writer io.Writer, event CustomEvent) error {
	w := checkWriter(writer)
	if err := writeID(w, event.Id); err != nil {
		return err
	}
	if err := writeEvent(w, event.Event); err != nil {
		return err
	}
	if err := writeRetry(w, event.Retry); err != nil {
		return err
	}
	return writeData(w, event.Data)
}

func writeID(w stringWriter, id string) error {
	if len(id) > 0 {
		if _, err := w.writeString("id: "); err != nil {
			return err
		}
		if _, err := fieldReplacer.WriteString(w, id); err != nil {
			return err
		}
		if _, err := w.writeString("\n"); err != nil {
			return err
		}
	}
	return nil
}

func writeEvent(w stringWriter, event string) error {
	if len(event) > 0 {
		if _, err := w.writeString("event: "); err != nil {
			return err
		}
		if _, err := fieldReplacer.WriteString(w, event); err != nil {
			return err
		}
		if _, err := w.writeString("\n"); err != nil {
			return err
		}
	}
	return nil
}

func writeRetry(w stringWriter, retry uint) error {
	if retry > 0 {
		if _, err := w.writeString(fmt.Sprintf("retry: %d\n", retry)); err != nil {
			return err
		}
	}
	return nil
}

func writeData(w stringWriter, data any) error {
	if _, err := dataReplacer.WriteString(w, fmt.Sprint(data)); err != nil {
		return err
	}
	if _, err := w.writeString("\n\n"); err != nil {
		return err
	}
	return nil
}

func (r CustomEvent) Render(w http.ResponseWriter) error {
	r.WriteContentType(w)
	return encode(w, r)
}

func (r CustomEvent) WriteContentType(w http.ResponseWriter) {
	header := w.Header()
	header["Content-Type"] = contentType

	if _, exist := header["Cache-Control"]; !exist {
		header["Cache-Control"] = noCache
	}
}

var _ render.Render = CustomEvent{}
