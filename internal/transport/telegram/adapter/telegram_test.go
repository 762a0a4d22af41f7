package adapter

import (
	"strings"
	"testing"

	kit "schedbot/internal/transport"
	logx "schedbot/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTelegramTextShort(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"hello"}, splitTelegramText("hello", 10, ""))
}

func TestSplitTelegramTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitTelegramText(text, 10, "")
	assert.Equal(t, []string{"aaaaaa", "bbbbbb"}, got)
}

func TestSplitTelegramTextHardCut(t *testing.T) {
	t.Parallel()
	got := splitTelegramText(strings.Repeat("x", 25), 10, "")
	require.Len(t, got, 3)
	assert.Equal(t, strings.Repeat("x", 10), got[0])
	assert.Equal(t, strings.Repeat("x", 5), got[2])
}

func TestSplitTelegramTextAvoidsOpenTag(t *testing.T) {
	t.Parallel()
	got := splitTelegramText("abcdefg<b>hi</b>", 9, "HTML")
	require.NotEmpty(t, got)
	assert.Equal(t, "abcdefg", got[0])
	assert.Equal(t, "abcdefg<b>hi</b>", strings.Join(got, ""))
}

func TestReplyMarkup(t *testing.T) {
	t.Parallel()
	assert.Nil(t, replyMarkup(&kit.SendOptions{}))

	rm := replyMarkup(&kit.SendOptions{RemoveKeyboard: true})
	require.NotNil(t, rm)
	assert.True(t, rm.RemoveKeyboard)

	rm = replyMarkup(&kit.SendOptions{Keyboard: [][]string{{"By surname", "By name and surname"}}})
	require.NotNil(t, rm)
	assert.True(t, rm.ResizeKeyboard)
	assert.True(t, rm.OneTimeKeyboard)
	require.Len(t, rm.ReplyKeyboard, 1)
	require.Len(t, rm.ReplyKeyboard[0], 2)
	assert.Equal(t, "By surname", rm.ReplyKeyboard[0][0].Text)
}

func TestMenuHashChangesWithContent(t *testing.T) {
	t.Parallel()
	a := menuHash([]kit.BotCommand{{Command: "start", Description: "authorize"}})
	b := menuHash([]kit.BotCommand{{Command: "start", Description: "authorize"}})
	c := menuHash([]kit.BotCommand{{Command: "start", Description: "log in"}})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	_, err := New(Config{Token: "  "}, logx.Nop())
	assert.Error(t, err)
}
