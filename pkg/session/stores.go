package session

import (
	"github.com/pkg/errors"

	"github.com/go-go-golems/coachchat/pkg/config"
	"github.com/go-go-golems/coachchat/pkg/persistence/chatstore"
	"github.com/go-go-golems/coachchat/pkg/persistence/messagestore"
)

// Stores bundles the two stores a session works on.
type Stores struct {
	Messages messagestore.Store
	Chat     chatstore.Store
}

// OpenStores opens the stores selected by cfg.Driver. SQLite keeps both
// tables in the same database file.
func OpenStores(cfg config.StoreConfig) (Stores, error) {
	switch cfg.Driver {
	case config.DriverMemory, "":
		return Stores{
			Messages: messagestore.NewInMemoryStore(),
			Chat:     chatstore.NewInMemoryStore(0),
		}, nil
	case config.DriverSQLite:
		dsn, err := messagestore.SQLiteDSNForFile(cfg.SQLitePath)
		if err != nil {
			return Stores{}, err
		}
		messages, err := messagestore.NewSQLiteStore(dsn)
		if err != nil {
			return Stores{}, errors.Wrap(err, "session: open message store")
		}
		chat, err := chatstore.NewSQLiteStore(dsn)
		if err != nil {
			_ = messages.Close()
			return Stores{}, errors.Wrap(err, "session: open chat store")
		}
		return Stores{Messages: messages, Chat: chat}, nil
	default:
		return Stores{}, errors.Errorf("session: unknown store driver %q", cfg.Driver)
	}
}

func (s Stores) Close() error {
	var first error
	if s.Chat != nil {
		first = s.Chat.Close()
	}
	if s.Messages != nil {
		if err := s.Messages.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
