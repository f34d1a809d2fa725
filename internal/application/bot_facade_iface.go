package application

import (
	"context"
)

// ---- small interfaces to decouple the facade from concrete infra types ----

// Translator renders localized bot replies; *i18n.Translator implements it.
type Translator interface {
	T(key string, args ...interface{}) string
}

// Notifier pushes a plain notice to chats; *usecase.Dispatcher implements it.
type Notifier interface {
	Notify(ctx context.Context, destinations []int64, text string)
}
