package api

import (
	"io"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
)

func writeError(c *echo.Context, err error) error {
	status, errType := statusFor(err)
	return c.JSON(status, map[string]any{
		"error": ErrorBody{Message: err.Error(), Type: errType},
	})
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, newInvalidRequest(msg))
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return out, newInvalidRequest("invalid JSON body: " + err.Error())
	}
	return out, nil
}

func streamParam(c *echo.Context) bool {
	q := c.QueryParam("stream")
	return q == "1" || strings.EqualFold(q, "true")
}

func newCompletionID() string {
	return "cmpl-" + uuid.NewString()
}
