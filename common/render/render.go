// Package render writes server-sent events through gin, flushing each one
// so clients observe chunks as they are produced.
package render

import (
	"encoding/json"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok-api/common"
)

// StringData writes one "data:" line. A leading "data: " on str is folded
// so callers can pass either raw payloads or pre-framed lines.
func StringData(c *gin.Context, str string) {
	str = strings.TrimPrefix(str, "data: ")
	str = strings.TrimSuffix(str, "\r")
	c.Render(-1, common.CustomEvent{Data: "data: " + str})
	c.Writer.Flush()
}

// ObjectData marshals object and writes it as one "data:" line.
func ObjectData(c *gin.Context, object any) error {
	jsonData, err := json.Marshal(object)
	if err != nil {
		return errors.Wrap(err, "marshal sse payload")
	}
	StringData(c, string(jsonData))
	return nil
}

// EventData writes a named event with a JSON payload.
func EventData(c *gin.Context, event string, object any) error {
	jsonData, err := json.Marshal(object)
	if err != nil {
		return errors.Wrap(err, "marshal sse payload")
	}
	c.Render(-1, common.CustomEvent{Event: event, Data: "data: " + string(jsonData)})
	c.Writer.Flush()
	return nil
}

// Done writes the stream terminator.
func Done(c *gin.Context) {
	StringData(c, "[DONE]")
}
