package echoapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/tymastrangelo/groupgrade-sub000/core"
)

const (
	headerETag        = "ETag"
	headerIfNoneMatch = "If-None-Match"
)

// etagJSON sends v as JSON tagged with the blake3 ETag of its encoding, or 304 when the
// request already holds that version.
func etagJSON(ctx echo.Context, code int, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encoding response")
	}
	tag := core.ETag(body)
	ctx.Response().Header().Set(headerETag, tag)
	if etagMatches(ctx.Request().Header.Get(headerIfNoneMatch), tag) {
		return ctx.NoContent(http.StatusNotModified)
	}
	return ctx.JSONBlob(code, body)
}

func etagMatches(header, tag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == tag {
			return true
		}
	}
	return false
}
