package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tg_payment_link_bot/internal/amount"
	"tg_payment_link_bot/internal/domain"
	"tg_payment_link_bot/internal/link"
	"tg_payment_link_bot/internal/logging"
	"tg_payment_link_bot/internal/session"
	"tg_payment_link_bot/internal/stripe"
)

// AccessChecker decides whether a user may use the bot.
type AccessChecker interface {
	CanAccess(userID int64) bool
}

// Catalog is the read-only product surface the handlers consume.
type Catalog interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
}

// Issuer creates a payment link for a product at a minor-unit amount.
type Issuer interface {
	Issue(ctx context.Context, productID string, minorUnits int64) (link.Result, error)
}

// Handlers binds chat events to the access gate, session store, catalog, and
// link issuer. All methods are safe for concurrent use; per-session state
// lives entirely in the session store.
type Handlers struct {
	access   AccessChecker
	sessions session.Store
	catalog  Catalog
	issuer   Issuer
	logger   *logrus.Entry
}

// NewHandlers constructs the conversation handlers.
func NewHandlers(access AccessChecker, sessions session.Store, catalog Catalog, issuer Issuer, logger *logrus.Entry) *Handlers {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Handlers{
		access:   access,
		sessions: sessions,
		catalog:  catalog,
		issuer:   issuer,
		logger:   logger,
	}
}

// Help handles the /help command.
func (h *Handlers) Help(ctx context.Context, api telegramAPI, update *models.Update) {
	if update == nil || update.Message == nil {
		return
	}

	chatID, userID := update.Message.Chat.ID, senderID(update.Message)
	logger := h.updateLogger(chatID, userID, "command_help")

	if !h.checkAccess(ctx, api, chatID, userID, logger) {
		return
	}

	h.reply(ctx, api, chatID, msgHelp, logger)
}

// Products handles the /products command: it lists every active product as a
// one-button-per-product inline keyboard.
func (h *Handlers) Products(ctx context.Context, api telegramAPI, update *models.Update) {
	if update == nil || update.Message == nil {
		return
	}

	chatID, userID := update.Message.Chat.ID, senderID(update.Message)
	logger := h.updateLogger(chatID, userID, "command_products")

	if !h.checkAccess(ctx, api, chatID, userID, logger) {
		return
	}

	h.typing(ctx, api, chatID, logger)

	products, err := h.catalog.ListProducts(ctx)
	if err != nil {
		logger.WithError(err).Error("failed to list products")
		h.reply(ctx, api, chatID, msgGenericFailure, logger)
		return
	}

	if len(products) == 0 {
		h.reply(ctx, api, chatID, msgNoProducts, logger)
		return
	}

	keyboard := make([][]models.InlineKeyboardButton, 0, len(products))
	for _, product := range products {
		keyboard = append(keyboard, []models.InlineKeyboardButton{
			{
				Text:         product.Name,
				CallbackData: callbackSelectProduct + ":" + product.ID,
			},
		})
	}

	_, err = api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        msgChooseProduct,
		ReplyMarkup: &models.InlineKeyboardMarkup{InlineKeyboard: keyboard},
	})
	if err != nil {
		logger.WithError(err).Error("failed to send product keyboard")
		return
	}

	logger.WithField("product_count", len(products)).Info("sent product list")
}

// Clear handles the /clear command by dropping the current selection. It
// succeeds even when nothing is selected.
func (h *Handlers) Clear(ctx context.Context, api telegramAPI, update *models.Update) {
	if update == nil || update.Message == nil {
		return
	}

	chatID, userID := update.Message.Chat.ID, senderID(update.Message)
	logger := h.updateLogger(chatID, userID, "command_clear")

	if !h.checkAccess(ctx, api, chatID, userID, logger) {
		return
	}

	if err := h.sessions.Clear(ctx, domain.SessionKey{ChatID: chatID, UserID: userID}); err != nil {
		logger.WithError(err).Error("failed to clear session")
		h.reply(ctx, api, chatID, msgGenericFailure, logger)
		return
	}

	logger.Info("cleared product selection")
	h.reply(ctx, api, chatID, msgCleared, logger)
}

// ButtonClick dispatches inline-button callbacks by their "<verb>:<argument>"
// payload. Unknown payloads degrade to a could-not-understand reply.
func (h *Handlers) ButtonClick(ctx context.Context, api telegramAPI, update *models.Update) {
	if update == nil || update.CallbackQuery == nil {
		return
	}

	query := update.CallbackQuery
	chatID := messageChatID(query.Message)
	userID := query.From.ID
	logger := h.updateLogger(chatID, userID, "button_click")

	// Always answer the callback so the client stops its progress indicator.
	if _, err := api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: query.ID}); err != nil {
		logger.WithError(err).Warn("failed to answer callback query")
	}

	// Without a resolvable chat there is nowhere to reply or edit.
	if chatID == 0 {
		logger.Warn("callback message is not accessible, dropping update")
		return
	}

	if !h.checkAccess(ctx, api, chatID, userID, logger) {
		return
	}

	verb, argument, found := strings.Cut(query.Data, ":")
	if !found || verb != callbackSelectProduct || argument == "" {
		logger.WithField("payload", query.Data).Warn("unrecognized callback payload")
		h.reply(ctx, api, chatID, msgUnknownCommand, logger)
		return
	}

	h.selectProduct(ctx, api, query, chatID, userID, argument, logger)
}

func (h *Handlers) selectProduct(ctx context.Context, api telegramAPI, query *models.CallbackQuery, chatID, userID int64, productID string, logger *logrus.Entry) {
	err := h.sessions.Put(ctx, domain.Session{
		ChatID:            chatID,
		UserID:            userID,
		SelectedProductID: productID,
	})
	if err != nil {
		logger.WithError(err).Error("failed to store product selection")
		h.reply(ctx, api, chatID, msgGenericFailure, logger)
		return
	}

	logger.WithField("product_id", productID).Info("product selected")

	_, err = api.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID(query.Message),
		Text:      msgEnterPrice,
	})
	if err != nil {
		logger.WithError(err).Warn("failed to edit selection message, sending prompt instead")
		h.reply(ctx, api, chatID, msgEnterPrice, logger)
	}
}

// Text handles free-text messages. With a product selected the text is read
// as a price and a payment link is issued; otherwise the user is pointed at
// /products. Session state is unchanged by issuance, success or failure.
func (h *Handlers) Text(ctx context.Context, api telegramAPI, update *models.Update) {
	if update == nil || update.Message == nil {
		return
	}

	chatID, userID := update.Message.Chat.ID, senderID(update.Message)
	text := strings.TrimSpace(update.Message.Text)
	logger := h.updateLogger(chatID, userID, "text_message")

	if !h.checkAccess(ctx, api, chatID, userID, logger) {
		return
	}

	if strings.HasPrefix(text, "/") {
		logger.WithField("text", text).Warn("unknown command")
		h.reply(ctx, api, chatID, msgUnknownCommand, logger)
		return
	}

	sess, ok, err := h.sessions.Get(ctx, domain.SessionKey{ChatID: chatID, UserID: userID})
	if err != nil {
		logger.WithError(err).Error("failed to load session")
		h.reply(ctx, api, chatID, msgGenericFailure, logger)
		return
	}

	if !ok || !sess.HasSelection() {
		h.reply(ctx, api, chatID, msgSelectFirst, logger)
		return
	}

	h.issueLink(ctx, api, chatID, sess.SelectedProductID, text, logger)
}

func (h *Handlers) issueLink(ctx context.Context, api telegramAPI, chatID int64, productID, text string, logger *logrus.Entry) {
	logger = logger.WithFields(logging.Context{ProductID: productID}.Fields())

	product, err := h.catalog.GetProduct(ctx, productID)
	if err != nil {
		logger.WithError(err).Error("failed to retrieve selected product")
		h.reply(ctx, api, chatID, msgGenericFailure, logger)
		return
	}

	_, err = api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text: fmt.Sprintf(
			"Creating a new payment link for the selected product: *%s*.\nTo change the product, please use the /products command and select a new one.",
			product.Name,
		),
		ParseMode: models.ParseModeMarkdownV1,
	})
	if err != nil {
		logger.WithError(err).Warn("failed to send product announcement")
	}

	h.typing(ctx, api, chatID, logger)

	minorUnits, err := amount.Parse(text)
	if err != nil {
		logger.WithField("text", text).Info("could not parse price input")
		h.reply(ctx, api, chatID, msgInvalidAmount, logger)
		return
	}

	result, err := h.issuer.Issue(ctx, productID, minorUnits)
	if err != nil {
		h.replyIssueError(ctx, api, chatID, err, logger)
		return
	}

	h.reply(ctx, api, chatID, fmt.Sprintf(
		"Payment link for %s (%s) created:\n\n%s",
		amount.FormatUSD(result.Price.UnitAmount),
		result.Price.Currency,
		result.Link.URL,
	), logger)
}

func (h *Handlers) replyIssueError(ctx context.Context, api telegramAPI, chatID int64, err error, logger *logrus.Entry) {
	switch {
	case errors.Is(err, stripe.ErrAmountInvalid):
		logger.WithError(err).Info("backend rejected amount as invalid")
		h.reply(ctx, api, chatID, msgAmountInvalid, logger)
	case errors.Is(err, stripe.ErrAmountTooSmall):
		logger.WithError(err).Info("backend rejected amount as too small")
		h.reply(ctx, api, chatID, msgAmountTooSmall, logger)
	default:
		logger.WithError(err).Error("payment link issuance failed")
		h.reply(ctx, api, chatID, msgGenericFailure, logger)
	}
}

func (h *Handlers) checkAccess(ctx context.Context, api telegramAPI, chatID, userID int64, logger *logrus.Entry) bool {
	if h.access != nil && h.access.CanAccess(userID) {
		return true
	}

	logger.Info("access denied")
	h.reply(ctx, api, chatID, msgAccessDenied, logger)
	return false
}

func (h *Handlers) reply(ctx context.Context, api telegramAPI, chatID int64, text string, logger *logrus.Entry) {
	if _, err := api.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		logger.WithError(err).Error("failed to send reply")
	}
}

func (h *Handlers) typing(ctx context.Context, api telegramAPI, chatID int64, logger *logrus.Entry) {
	_, err := api.SendChatAction(ctx, &bot.SendChatActionParams{
		ChatID: chatID,
		Action: models.ChatActionTyping,
	})
	if err != nil {
		logger.WithError(err).Debug("failed to send chat action")
	}
}

func (h *Handlers) updateLogger(chatID, userID int64, event string) *logrus.Entry {
	return h.logger.
		WithFields(logging.Context{ChatID: chatID, UserID: userID, Event: event}.Fields()).
		WithField("correlation_id", uuid.NewString())
}

func senderID(msg *models.Message) int64 {
	if msg == nil || msg.From == nil {
		return 0
	}

	return msg.From.ID
}
