package bot

// Callback payload verbs. Payloads are formatted as "<verb>:<argument>".
const callbackSelectProduct = "select_product"

// User-facing reply texts.
const (
	msgAccessDenied   = "Sorry, you are not allowed to access the system."
	msgChooseProduct  = "Choose a product:"
	msgNoProducts     = "There are no active products to choose from."
	msgEnterPrice     = "Enter the price for the product to create a new payment link:"
	msgUnknownCommand = "Sorry, I could not understand that command."
	msgSelectFirst    = "To create a new payment link, please use the /products command to select a product."
	msgInvalidAmount  = "That doesn't look like a price. Please send a number like 19.99."
	msgAmountInvalid  = "Sorry, that price is invalid. Please enter a lower value."
	msgAmountTooSmall = "Sorry, that price is too low to create a payment link."
	msgGenericFailure = "Sorry, I could not create a new payment link. Please try again later."
	msgCleared        = "Product selection cleared. Use /products to select a new one."

	msgHelp = "Hi, I am a bot that helps you create payment links for your products.\n" +
		"You can use the following commands:\n\n" +
		"/products - List all available products, click one of them to select it.\n" +
		"/clear - Clear the current product selection.\n" +
		"/help - Show this help message.\n"
)
