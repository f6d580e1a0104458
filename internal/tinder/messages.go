package tinder

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ibeckermayer/uibot/internal/browser"
	"github.com/ibeckermayer/uibot/internal/verify"
)

// textareaValueJS reads the chat box value; the DOM text of a textarea does
// not follow typing.
var textareaValueJS = fmt.Sprintf(`(() => {
	const el = document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	return el ? el.value : '';
})()`, browser.JSString(ChatTextarea))

// SendMessage writes text into the chat with chatID and sends it. The send
// counts once the chat box has cleared.
func (b *Bot) SendMessage(ctx context.Context, chatID, text string) error {
	if err := b.requireLogin(ctx); err != nil {
		return err
	}
	b.popups.Suppress(ctx)
	if err := b.openChat(ctx, chatID); err != nil {
		return err
	}

	if err := b.fillVisible(ctx, ChatTextarea, text); err != nil {
		return fmt.Errorf("chat box: %w", err)
	}
	if err := b.page.Press(ctx, ChatTextarea, browser.KeyEnter); err != nil {
		return err
	}

	err := verify.Until(ctx, func(ctx context.Context) (bool, error) {
		var v string
		if err := b.page.Evaluate(ctx, textareaValueJS, &v); err != nil {
			return false, err
		}
		return v == "", nil
	}, b.delay, pollInterval)
	if err != nil {
		return fmt.Errorf("message to %s not sent: %w", chatID, err)
	}
	b.logger.Info("message sent", zap.String("chat_id", chatID), zap.Int("length", len(text)))
	return nil
}

// Unmatch removes the match behind chatID.
func (b *Bot) Unmatch(ctx context.Context, chatID string) error {
	if err := b.requireLogin(ctx); err != nil {
		return err
	}
	b.popups.Suppress(ctx)
	if err := b.openChat(ctx, chatID); err != nil {
		return err
	}

	if err := b.clickVisible(ctx, UnmatchButton); err != nil {
		return fmt.Errorf("unmatch button: %w", err)
	}
	if err := verify.Sleep(ctx, b.settle); err != nil {
		return err
	}
	if err := b.clickVisible(ctx, ConfirmUnmatch); err != nil {
		return fmt.Errorf("unmatch confirmation: %w", err)
	}

	err := verify.Until(ctx, func(ctx context.Context) (bool, error) {
		ok, err := b.page.Visible(ctx, ConfirmUnmatch, 0)
		return !ok, err
	}, b.delay, pollInterval)
	if err != nil {
		return fmt.Errorf("unmatch of %s not confirmed: %w", chatID, err)
	}
	b.logger.Info("unmatched", zap.String("chat_id", chatID))
	return nil
}
