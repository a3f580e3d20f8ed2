package catalogue

import (
	"strings"

	catalog "mova-bot/internal/catalogue"
	"mova-bot/pkg/mova"
)

const (
	textChooseCategory = "Choose a category:"
	textNoCategories   = "No categories available."
	textChooseExample  = "Choose example by entering number:\n"
	textEmptyExamples  = "There is no examples"
	textNoExamples     = "No examples available"
	textUnavailable    = "Content is temporarily unavailable, please try again later."
)

// renderOutcome builds the text message for outcome. Target is left for the
// caller. Example outcomes with an image are sent as photos unless the
// platform rejects the image.
func renderOutcome(outcome catalog.Outcome) (mova.SendMessageRequest, bool) {
	switch outcome.Kind {
	case catalog.OutcomeCategoryList:
		rows := make([][]mova.InlineButton, 0, len(outcome.Choices))
		for _, choice := range outcome.Choices {
			rows = append(rows, []mova.InlineButton{{Text: choice.Label, Data: choice.Value}})
		}
		return mova.SendMessageRequest{
			Text:   textChooseCategory,
			Markup: &mova.ReplyMarkup{InlineKeyboard: rows},
		}, true
	case catalog.OutcomeNoCategories:
		return mova.SendMessageRequest{Text: textNoCategories}, true
	case catalog.OutcomeExampleList:
		if len(outcome.Choices) == 0 {
			return mova.SendMessageRequest{Text: textEmptyExamples}, true
		}
		labels := make([]string, 0, len(outcome.Choices))
		for _, choice := range outcome.Choices {
			labels = append(labels, choice.Label)
		}
		return mova.SendMessageRequest{
			Text:   textChooseExample + strings.Join(labels, "\n"),
			Markup: &mova.ReplyMarkup{ForceReply: true},
		}, true
	case catalog.OutcomeExample:
		return mova.SendMessageRequest{Text: itemText(outcome.Item)}, true
	case catalog.OutcomeNoExamples:
		return mova.SendMessageRequest{Text: textNoExamples}, true
	case catalog.OutcomeUnavailable:
		return mova.SendMessageRequest{Text: textUnavailable}, true
	default:
		return mova.SendMessageRequest{}, false
	}
}

func itemText(item mova.RenderedExample) string {
	if item.Body == "" {
		return item.Title
	}

	return item.Title + "\n" + item.Body
}
