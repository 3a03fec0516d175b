package server

import (
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

// queryBool reads an optional boolean query parameter; absent means false.
func queryBool(c *gin.Context, key string) (bool, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return false, nil
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return false, invalidQueryParam(key)
	}
	return parsed, nil
}

// checkQueryID rejects an optional ID filter that is not a snowflake.
func checkQueryID(key, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if id, err := snowflake.ParseString(raw); err != nil || id == 0 {
		return invalidQueryParam(key)
	}
	return nil
}

func queryPageSize(c *gin.Context) (int32, error) {
	raw := strings.TrimSpace(c.Query("page_size"))
	if raw == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || parsed < 0 {
		return 0, invalidQueryParam("page_size")
	}
	return int32(parsed), nil
}

func invalidQueryParam(key string) error {
	return newValidationError(key, "invalid_"+key, "invalid "+key)
}
