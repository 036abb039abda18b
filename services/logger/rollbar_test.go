package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/kannanru/studentfee/core"
	"github.com/kannanru/studentfee/core/user"
)

func TestRollbarLogger(t *testing.T) {
	var buf bytes.Buffer
	conf := core.NewTestConfig()
	logger := NewRollbarLogger(log.New(&buf, "", 0), conf)

	logger.Debug("hidden")
	logger.Error("payment failed", errors.New("boom"), map[string]interface{}{"order": "order_1"}, user.User{ID: "u1", Username: "clerk"})

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "ERROR: payment failed")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "order_1")
	assert.NotContains(t, out, "clerk")
}
