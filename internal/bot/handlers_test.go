package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"tg_payment_link_bot/internal/domain"
	"tg_payment_link_bot/internal/link"
	"tg_payment_link_bot/internal/session"
	"tg_payment_link_bot/internal/stripe"
)

type fakeAPI struct {
	messages []*bot.SendMessageParams
	edits    []*bot.EditMessageTextParams
	actions  []*bot.SendChatActionParams
	answered []string
}

func (f *fakeAPI) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.messages = append(f.messages, params)
	return &models.Message{}, nil
}

func (f *fakeAPI) EditMessageText(_ context.Context, params *bot.EditMessageTextParams) (*models.Message, error) {
	f.edits = append(f.edits, params)
	return &models.Message{}, nil
}

func (f *fakeAPI) SendChatAction(_ context.Context, params *bot.SendChatActionParams) (bool, error) {
	f.actions = append(f.actions, params)
	return true, nil
}

func (f *fakeAPI) AnswerCallbackQuery(_ context.Context, params *bot.AnswerCallbackQueryParams) (bool, error) {
	f.answered = append(f.answered, params.CallbackQueryID)
	return true, nil
}

func (f *fakeAPI) lastMessage(t *testing.T) *bot.SendMessageParams {
	t.Helper()
	if len(f.messages) == 0 {
		t.Fatalf("expected at least one message to be sent")
	}
	return f.messages[len(f.messages)-1]
}

type allowAll struct{}

func (allowAll) CanAccess(int64) bool { return true }

type denyAll struct{}

func (denyAll) CanAccess(int64) bool { return false }

// fakeStripe implements both the Catalog and link.Backend surfaces so a real
// link.Issuer can drive it end to end.
type fakeStripe struct {
	products []domain.Product
	prices   []domain.Price

	listProductCalls int
	listPriceCalls   int
	createPriceCalls int
	linkCalls        int

	createPriceErr error
	linkErr        error
}

func (f *fakeStripe) ListProducts(context.Context) ([]domain.Product, error) {
	f.listProductCalls++
	return f.products, nil
}

func (f *fakeStripe) GetProduct(_ context.Context, productID string) (domain.Product, error) {
	for _, p := range f.products {
		if p.ID == productID {
			return p, nil
		}
	}
	return domain.Product{}, errors.New("product not found")
}

func (f *fakeStripe) ListPrices(_ context.Context, productID string) ([]domain.Price, error) {
	f.listPriceCalls++

	var scoped []domain.Price
	for _, p := range f.prices {
		if p.ProductID == productID {
			scoped = append(scoped, p)
		}
	}
	return scoped, nil
}

func (f *fakeStripe) GetPrice(_ context.Context, priceID string) (domain.Price, error) {
	for _, p := range f.prices {
		if p.ID == priceID {
			return p, nil
		}
	}
	return domain.Price{}, errors.New("price not found")
}

func (f *fakeStripe) CreatePrice(_ context.Context, productID, currency string, unitAmount int64) (domain.Price, error) {
	f.createPriceCalls++
	if f.createPriceErr != nil {
		return domain.Price{}, f.createPriceErr
	}

	price := domain.Price{
		ID:         fmt.Sprintf("price_%d", len(f.prices)+1),
		ProductID:  productID,
		UnitAmount: unitAmount,
		Currency:   currency,
		Active:     true,
	}
	f.prices = append(f.prices, price)
	return price, nil
}

func (f *fakeStripe) CreatePaymentLink(_ context.Context, priceID string) (domain.PaymentLink, error) {
	f.linkCalls++
	if f.linkErr != nil {
		return domain.PaymentLink{}, f.linkErr
	}

	return domain.PaymentLink{URL: "https://buy.stripe.com/test_" + priceID, PriceID: priceID}, nil
}

func nullLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func newTestHandlers(access AccessChecker, backend *fakeStripe) (*Handlers, *session.MemoryStore) {
	sessions := session.NewMemoryStore()
	issuer := link.NewIssuer(backend, "usd", nullLogger())
	return NewHandlers(access, sessions, backend, issuer, nullLogger()), sessions
}

func messageUpdate(chatID, userID int64, text string) *models.Update {
	return &models.Update{
		Message: &models.Message{
			ID:   7,
			From: &models.User{ID: userID},
			Chat: models.Chat{ID: chatID},
			Text: text,
		},
	}
}

func callbackUpdate(chatID, userID int64, data string) *models.Update {
	return &models.Update{
		CallbackQuery: &models.CallbackQuery{
			ID:   "cbq-1",
			From: models.User{ID: userID},
			Data: data,
			Message: models.MaybeInaccessibleMessage{
				Type: models.MaybeInaccessibleMessageTypeMessage,
				Message: &models.Message{
					ID:   5,
					Chat: models.Chat{ID: chatID},
				},
			},
		},
	}
}

func TestProductsListsActiveProductsAsButtons(t *testing.T) {
	backend := &fakeStripe{products: []domain.Product{
		{ID: "prod_1", Name: "Basic", Active: true},
		{ID: "prod_2", Name: "Pro", Active: true},
	}}
	handlers, _ := newTestHandlers(allowAll{}, backend)
	api := &fakeAPI{}

	handlers.Products(context.Background(), api, messageUpdate(100, 200, "/products"))

	msg := api.lastMessage(t)
	if msg.Text != msgChooseProduct {
		t.Fatalf("expected %q, got %q", msgChooseProduct, msg.Text)
	}

	markup, ok := msg.ReplyMarkup.(*models.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("expected inline keyboard markup, got %T", msg.ReplyMarkup)
	}
	if len(markup.InlineKeyboard) != 2 {
		t.Fatalf("expected one button row per product, got %d", len(markup.InlineKeyboard))
	}
	if markup.InlineKeyboard[0][0].Text != "Basic" || markup.InlineKeyboard[0][0].CallbackData != "select_product:prod_1" {
		t.Fatalf("unexpected first button: %+v", markup.InlineKeyboard[0][0])
	}
	if markup.InlineKeyboard[1][0].CallbackData != "select_product:prod_2" {
		t.Fatalf("unexpected second button: %+v", markup.InlineKeyboard[1][0])
	}

	if len(api.actions) != 1 {
		t.Fatalf("expected a typing action before listing, got %d", len(api.actions))
	}
}

func TestProductsDeniedUser(t *testing.T) {
	backend := &fakeStripe{products: []domain.Product{{ID: "prod_1", Name: "Basic", Active: true}}}
	handlers, _ := newTestHandlers(denyAll{}, backend)
	api := &fakeAPI{}

	handlers.Products(context.Background(), api, messageUpdate(100, 200, "/products"))

	if api.lastMessage(t).Text != msgAccessDenied {
		t.Fatalf("expected denial reply, got %q", api.lastMessage(t).Text)
	}
	if backend.listProductCalls != 0 {
		t.Fatalf("expected no catalog call for denied user, got %d", backend.listProductCalls)
	}
}

func TestButtonClickSelectsProduct(t *testing.T) {
	backend := &fakeStripe{products: []domain.Product{{ID: "prod_1", Name: "Basic", Active: true}}}
	handlers, sessions := newTestHandlers(allowAll{}, backend)
	api := &fakeAPI{}

	handlers.ButtonClick(context.Background(), api, callbackUpdate(100, 200, "select_product:prod_1"))

	if len(api.answered) != 1 {
		t.Fatalf("expected callback query to be answered, got %d", len(api.answered))
	}

	sess, ok, err := sessions.Get(context.Background(), domain.SessionKey{ChatID: 100, UserID: 200})
	if err != nil || !ok {
		t.Fatalf("expected session to be stored, ok=%v err=%v", ok, err)
	}
	if sess.SelectedProductID != "prod_1" {
		t.Fatalf("expected prod_1 selected, got %q", sess.SelectedProductID)
	}

	if len(api.edits) != 1 || api.edits[0].Text != msgEnterPrice {
		t.Fatalf("expected price prompt via message edit, got %+v", api.edits)
	}
}

func TestButtonClickLastSelectionWins(t *testing.T) {
	backend := &fakeStripe{}
	handlers, sessions := newTestHandlers(allowAll{}, backend)
	api := &fakeAPI{}
	ctx := context.Background()

	handlers.ButtonClick(ctx, api, callbackUpdate(100, 200, "select_product:prod_a"))
	handlers.ButtonClick(ctx, api, callbackUpdate(100, 200, "select_product:prod_b"))

	sess, ok, err := sessions.Get(ctx, domain.SessionKey{ChatID: 100, UserID: 200})
	if err != nil || !ok {
		t.Fatalf("expected session, ok=%v err=%v", ok, err)
	}
	if sess.SelectedProductID != "prod_b" {
		t.Fatalf("expected last selection to win, got %q", sess.SelectedProductID)
	}
}

func TestButtonClickWithoutResolvableChat(t *testing.T) {
	handlers, sessions := newTestHandlers(allowAll{}, &fakeStripe{})
	api := &fakeAPI{}

	// Callback carries no accessible message, so there is no chat to reply to.
	update := &models.Update{
		CallbackQuery: &models.CallbackQuery{
			ID:   "cbq-2",
			From: models.User{ID: 200},
			Data: "select_product:prod_1",
		},
	}

	handlers.ButtonClick(context.Background(), api, update)

	if len(api.answered) != 1 {
		t.Fatalf("expected callback query to be answered, got %d", len(api.answered))
	}
	if len(api.messages) != 0 || len(api.edits) != 0 {
		t.Fatalf("expected no replies without a resolvable chat, got %d messages %d edits", len(api.messages), len(api.edits))
	}
	if sessions.Len() != 0 {
		t.Fatalf("expected no session mutation without a resolvable chat")
	}
}

func TestButtonClickUnknownPayload(t *testing.T) {
	tests := []string{
		"launch_rocket:now",
		"no-colon-payload",
		"select_product:",
	}

	for _, payload := range tests {
		payload := payload
		t.Run(payload, func(t *testing.T) {
			handlers, sessions := newTestHandlers(allowAll{}, &fakeStripe{})
			api := &fakeAPI{}

			handlers.ButtonClick(context.Background(), api, callbackUpdate(100, 200, payload))

			if api.lastMessage(t).Text != msgUnknownCommand {
				t.Fatalf("expected %q, got %q", msgUnknownCommand, api.lastMessage(t).Text)
			}
			if sessions.Len() != 0 {
				t.Fatalf("expected no session mutation for unknown payload")
			}
		})
	}
}

func TestTextWithoutSelectionPointsAtProducts(t *testing.T) {
	backend := &fakeStripe{}
	handlers, _ := newTestHandlers(allowAll{}, backend)
	api := &fakeAPI{}

	handlers.Text(context.Background(), api, messageUpdate(100, 200, "19.99"))

	if api.lastMessage(t).Text != msgSelectFirst {
		t.Fatalf("expected %q, got %q", msgSelectFirst, api.lastMessage(t).Text)
	}
	if backend.listPriceCalls != 0 || backend.createPriceCalls != 0 || backend.linkCalls != 0 {
		t.Fatalf("expected no backend calls without a selection")
	}
}

func TestEndToEndLinkIssuance(t *testing.T) {
	backend := &fakeStripe{products: []domain.Product{{ID: "prod_1", Name: "Basic", Active: true}}}
	handlers, sessions := newTestHandlers(allowAll{}, backend)
	api := &fakeAPI{}
	ctx := context.Background()

	handlers.Products(ctx, api, messageUpdate(100, 200, "/products"))
	handlers.ButtonClick(ctx, api, callbackUpdate(100, 200, "select_product:prod_1"))
	handlers.Text(ctx, api, messageUpdate(100, 200, "19.99"))

	if backend.createPriceCalls != 1 {
		t.Fatalf("expected one price creation, got %d", backend.createPriceCalls)
	}
	if backend.prices[0].UnitAmount != 1999 || backend.prices[0].Currency != "usd" {
		t.Fatalf("expected 1999/usd price, got %+v", backend.prices[0])
	}

	reply := api.lastMessage(t).Text
	if !strings.Contains(reply, "$19.99") {
		t.Fatalf("expected formatted amount in reply, got %q", reply)
	}
	if !strings.Contains(reply, "https://buy.stripe.com/test_price_1") {
		t.Fatalf("expected link url in reply, got %q", reply)
	}

	// The selection survives issuance so the same product can be re-priced.
	sess, ok, err := sessions.Get(ctx, domain.SessionKey{ChatID: 100, UserID: 200})
	if err != nil || !ok {
		t.Fatalf("expected session to remain, ok=%v err=%v", ok, err)
	}
	if sess.SelectedProductID != "prod_1" {
		t.Fatalf("expected selection to survive issuance, got %q", sess.SelectedProductID)
	}

	// Re-pricing the same amount reuses the price instead of creating another.
	handlers.Text(ctx, api, messageUpdate(100, 200, "19.99"))
	if backend.createPriceCalls != 1 {
		t.Fatalf("expected price reuse on second issuance, got %d creations", backend.createPriceCalls)
	}
}

func TestTextInvalidAmount(t *testing.T) {
	backend := &fakeStripe{products: []domain.Product{{ID: "prod_1", Name: "Basic", Active: true}}}
	handlers, sessions := newTestHandlers(allowAll{}, backend)
	api := &fakeAPI{}
	ctx := context.Background()

	if err := sessions.Put(ctx, domain.Session{ChatID: 100, UserID: 200, SelectedProductID: "prod_1"}); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	handlers.Text(ctx, api, messageUpdate(100, 200, "not a number"))

	if api.lastMessage(t).Text != msgInvalidAmount {
		t.Fatalf("expected %q, got %q", msgInvalidAmount, api.lastMessage(t).Text)
	}
	if backend.listPriceCalls != 0 {
		t.Fatalf("expected no price lookup for unparsable amount")
	}
}

func TestTextBackendRejections(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{
			name:    "amount too small",
			err:     fmt.Errorf("create price: %w", stripe.ErrAmountTooSmall),
			wantMsg: msgAmountTooSmall,
		},
		{
			name:    "amount invalid",
			err:     fmt.Errorf("create price: %w", stripe.ErrAmountInvalid),
			wantMsg: msgAmountInvalid,
		},
		{
			name:    "opaque failure",
			err:     errors.New("backend down"),
			wantMsg: msgGenericFailure,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeStripe{
				products:       []domain.Product{{ID: "prod_1", Name: "Basic", Active: true}},
				createPriceErr: tt.err,
			}
			handlers, sessions := newTestHandlers(allowAll{}, backend)
			api := &fakeAPI{}
			ctx := context.Background()

			if err := sessions.Put(ctx, domain.Session{ChatID: 100, UserID: 200, SelectedProductID: "prod_1"}); err != nil {
				t.Fatalf("seed session: %v", err)
			}

			handlers.Text(ctx, api, messageUpdate(100, 200, "19.99"))

			if api.lastMessage(t).Text != tt.wantMsg {
				t.Fatalf("expected %q, got %q", tt.wantMsg, api.lastMessage(t).Text)
			}

			// Failure leaves the selection untouched for a retry.
			sess, ok, err := sessions.Get(ctx, domain.SessionKey{ChatID: 100, UserID: 200})
			if err != nil || !ok || sess.SelectedProductID != "prod_1" {
				t.Fatalf("expected selection to survive failure, ok=%v err=%v sess=%+v", ok, err, sess)
			}
		})
	}
}

func TestTextUnknownCommand(t *testing.T) {
	handlers, _ := newTestHandlers(allowAll{}, &fakeStripe{})
	api := &fakeAPI{}

	handlers.Text(context.Background(), api, messageUpdate(100, 200, "/frobnicate"))

	if api.lastMessage(t).Text != msgUnknownCommand {
		t.Fatalf("expected %q, got %q", msgUnknownCommand, api.lastMessage(t).Text)
	}
}

func TestClearWithoutSelectionSucceeds(t *testing.T) {
	handlers, sessions := newTestHandlers(allowAll{}, &fakeStripe{})
	api := &fakeAPI{}

	handlers.Clear(context.Background(), api, messageUpdate(100, 200, "/clear"))

	if api.lastMessage(t).Text != msgCleared {
		t.Fatalf("expected %q, got %q", msgCleared, api.lastMessage(t).Text)
	}
	if sessions.Len() != 0 {
		t.Fatalf("expected no sessions after clear")
	}
}

func TestClearDropsSelection(t *testing.T) {
	handlers, sessions := newTestHandlers(allowAll{}, &fakeStripe{})
	api := &fakeAPI{}
	ctx := context.Background()

	handlers.ButtonClick(ctx, api, callbackUpdate(100, 200, "select_product:prod_1"))
	handlers.Clear(ctx, api, messageUpdate(100, 200, "/clear"))

	_, ok, err := sessions.Get(ctx, domain.SessionKey{ChatID: 100, UserID: 200})
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if ok {
		t.Fatalf("expected selection to be gone after /clear")
	}
}

func TestHelpRepliesWithUsage(t *testing.T) {
	handlers, _ := newTestHandlers(allowAll{}, &fakeStripe{})
	api := &fakeAPI{}

	handlers.Help(context.Background(), api, messageUpdate(100, 200, "/help"))

	reply := api.lastMessage(t).Text
	if !strings.Contains(reply, "/products") || !strings.Contains(reply, "/help") {
		t.Fatalf("expected help text to mention commands, got %q", reply)
	}
}

func TestHandlerLogsCarryContextFields(t *testing.T) {
	hookLogger, hook := logtest.NewNullLogger()
	entry := logrus.NewEntry(hookLogger)

	backend := &fakeStripe{products: []domain.Product{{ID: "prod_1", Name: "Basic", Active: true}}}
	sessions := session.NewMemoryStore()
	handlers := NewHandlers(allowAll{}, sessions, backend, link.NewIssuer(backend, "usd", entry), entry)
	api := &fakeAPI{}
	ctx := context.Background()

	if err := sessions.Put(ctx, domain.Session{ChatID: 100, UserID: 200, SelectedProductID: "prod_1"}); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	handlers.Text(ctx, api, messageUpdate(100, 200, "19.99"))

	found := false
	for _, logged := range hook.AllEntries() {
		if logged.Data["product_id"] != "prod_1" || logged.Data["correlation_id"] == nil {
			continue
		}
		found = true
		if logged.Data["chat_id"] != int64(100) || logged.Data["user_id"] != int64(200) {
			t.Fatalf("expected chat/user fields on issuance logs, got %v", logged.Data)
		}
	}
	if !found {
		t.Fatalf("expected issuance logs to carry product_id and correlation_id")
	}
}

func TestHandlersIgnoreNilUpdates(t *testing.T) {
	handlers, _ := newTestHandlers(allowAll{}, &fakeStripe{})
	api := &fakeAPI{}
	ctx := context.Background()

	handlers.Help(ctx, api, nil)
	handlers.Products(ctx, api, &models.Update{})
	handlers.ButtonClick(ctx, api, &models.Update{})
	handlers.Text(ctx, api, &models.Update{})
	handlers.Clear(ctx, api, &models.Update{})

	if len(api.messages) != 0 {
		t.Fatalf("expected no replies for empty updates, got %d", len(api.messages))
	}
}
