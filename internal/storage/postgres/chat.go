package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/action-initiative/internal/chatlog"
)

// ChatRepository stores published roll messages in chat_messages.
// It implements chatlog.Log.
type ChatRepository struct {
	db *pgxpool.Pool
}

// NewChatRepository creates a ChatRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewChatRepository(db *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{db: db}
}

// Publish inserts msg, assigning its id and timestamp when unset.
//
// Postcondition: Returns the stored message with ID and Created set.
func (r *ChatRepository) Publish(ctx context.Context, msg chatlog.Message) (chatlog.Message, error) {
	msg = chatlog.Prepare(msg, time.Now())
	dice := make([]int32, len(msg.Dice))
	for i, d := range msg.Dice {
		dice[i] = int32(d)
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO chat_messages (id, speaker, flavor, formula, dice, total, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		msg.ID, msg.Speaker, msg.Flavor, msg.Formula, dice, msg.Total, msg.Created,
	).Scan(&msg.Created)
	if err != nil {
		return chatlog.Message{}, fmt.Errorf("inserting chat message: %w", err)
	}
	msg.Created = msg.Created.UTC()
	return msg, nil
}

// Get returns the message with id.
//
// Postcondition: Returns chatlog.ErrNotFound when no such message exists.
func (r *ChatRepository) Get(ctx context.Context, id string) (chatlog.Message, error) {
	var msg chatlog.Message
	var dice []int32
	err := r.db.QueryRow(ctx,
		`SELECT id::text, speaker, flavor, formula, dice, total, created_at
		 FROM chat_messages WHERE id::text = $1`,
		id,
	).Scan(&msg.ID, &msg.Speaker, &msg.Flavor, &msg.Formula, &dice, &msg.Total, &msg.Created)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return chatlog.Message{}, fmt.Errorf("%s: %w", id, chatlog.ErrNotFound)
		}
		return chatlog.Message{}, fmt.Errorf("querying chat message: %w", err)
	}
	msg.Dice = make([]int, len(dice))
	for i, d := range dice {
		msg.Dice[i] = int(d)
	}
	msg.Created = msg.Created.UTC()
	return msg, nil
}
