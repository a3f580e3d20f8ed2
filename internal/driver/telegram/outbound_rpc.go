package telegram

import (
	"context"
	"fmt"
	"unicode/utf16"

	"mova-bot/pkg/mova"

	gotdtelegram "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/message/styling"
	"github.com/gotd/td/telegram/message/unpack"
	"github.com/gotd/td/tg"
)

// maxCaptionLength is Telegram's media caption limit in UTF-16 code units.
const maxCaptionLength = 1024

type textMessage struct {
	text    string
	replyTo int
	markup  tg.ReplyMarkupClass
}

type photoMessage struct {
	url     string
	caption string
	replyTo int
}

// outboundRPC is the slice of the Telegram API the sink uses. Sends return
// the new message ID.
type outboundRPC interface {
	SendText(ctx context.Context, peer tg.InputPeerClass, message textMessage) (int, error)
	SendPhoto(ctx context.Context, peer tg.InputPeerClass, message photoMessage) (int, error)
	AnswerCallback(ctx context.Context, queryID int64, text string) error
	ClearKeyboard(ctx context.Context, peer tg.InputPeerClass, messageID int) error
}

type gotdOutboundRPC struct {
	api    *tg.Client
	sender *message.Sender
}

func newGotdOutboundRPC(client *gotdtelegram.Client) gotdOutboundRPC {
	api := client.API()

	return gotdOutboundRPC{api: api, sender: message.NewSender(api)}
}

// to starts a send to peer, replying when replyTo is set.
func (r gotdOutboundRPC) to(peer tg.InputPeerClass, replyTo int) *message.Builder {
	builder := &r.sender.To(peer).Builder
	if replyTo > 0 {
		builder = builder.Reply(replyTo)
	}

	return builder
}

func (r gotdOutboundRPC) SendText(ctx context.Context, peer tg.InputPeerClass, msg textMessage) (int, error) {
	builder := r.to(peer, msg.replyTo)
	if msg.markup != nil {
		builder = builder.Markup(msg.markup)
	}

	return sentMessageID(builder.Text(ctx, msg.text))
}

func (r gotdOutboundRPC) SendPhoto(ctx context.Context, peer tg.InputPeerClass, msg photoMessage) (int, error) {
	var caption []message.StyledTextOption
	if msg.caption != "" {
		caption = append(caption, styling.Plain(msg.caption))
	}

	return sentMessageID(r.to(peer, msg.replyTo).Media(ctx, message.PhotoExternal(msg.url, caption...)))
}

func (r gotdOutboundRPC) AnswerCallback(ctx context.Context, queryID int64, text string) error {
	_, err := r.api.MessagesSetBotCallbackAnswer(ctx, &tg.MessagesSetBotCallbackAnswerRequest{
		QueryID: queryID,
		Message: text,
	})

	return err
}

// ClearKeyboard replaces the inline keyboard with an empty one.
func (r gotdOutboundRPC) ClearKeyboard(ctx context.Context, peer tg.InputPeerClass, messageID int) error {
	_, err := r.api.MessagesEditMessage(ctx, &tg.MessagesEditMessageRequest{
		Peer:        peer,
		ID:          messageID,
		ReplyMarkup: &tg.ReplyInlineMarkup{},
	})

	return err
}

func sentMessageID(updates tg.UpdatesClass, err error) (int, error) {
	if err != nil {
		return 0, err
	}

	id, err := unpack.MessageID(updates, nil)
	if err != nil {
		return 0, fmt.Errorf("read sent message id: %w", err)
	}

	return id, nil
}

// mapReplyMarkup builds Telegram markup. Empty markup yields nil.
func mapReplyMarkup(markup *mova.ReplyMarkup) tg.ReplyMarkupClass {
	switch {
	case markup == nil:
		return nil
	case markup.ForceReply:
		return &tg.ReplyKeyboardForceReply{}
	case len(markup.InlineKeyboard) == 0:
		return nil
	}

	rows := make([]tg.KeyboardButtonRow, len(markup.InlineKeyboard))
	for i, row := range markup.InlineKeyboard {
		rows[i].Buttons = make([]tg.KeyboardButtonClass, len(row))
		for j, button := range row {
			rows[i].Buttons[j] = &tg.KeyboardButtonCallback{Text: button.Text, Data: []byte(button.Data)}
		}
	}

	return &tg.ReplyInlineMarkup{Rows: rows}
}

// truncateUTF16 cuts text to at most limit UTF-16 code units without
// splitting a rune.
func truncateUTF16(text string, limit int) string {
	units := 0
	for index, value := range text {
		units += utf16.RuneLen(value)
		if units > limit {
			return text[:index]
		}
	}

	return text
}
