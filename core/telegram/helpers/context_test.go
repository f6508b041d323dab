package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/formbot/core/logger"
)

func TestBuildContext(t *testing.T) {
	c := tele.NewContext(nil, tele.Update{
		ID: 5,
		Message: &tele.Message{
			Sender: &tele.User{ID: 7},
			Chat:   &tele.Chat{ID: 9},
		},
	})

	ctx := BuildContext(c)
	assert.Equal(t, "5:9:7", logger.RIDFrom(ctx))
	assert.Equal(t, "5:9:7", c.Get("rid"))
	assert.Equal(t, 5, logger.UpdateIDFrom(ctx))
	assert.Equal(t, int64(7), logger.UserIDFrom(ctx))
	assert.Equal(t, int64(9), logger.ChatIDFrom(ctx))
	assert.Same(t, ctx, BuildContext(c), "context is cached per update")

	ctx = WithHandler(c, "start")
	assert.Equal(t, "start", logger.HandlerFrom(ctx))
	assert.Equal(t, "start", logger.HandlerFrom(BuildContext(c)))
}

func TestBuildContextNil(t *testing.T) {
	assert.NotNil(t, BuildContext(nil))
}
