package postgres

import (
	"context"
	"fmt"
)

// notifyChannel is the LISTEN/NOTIFY channel chat message inserts are
// published on.
const notifyChannel = "chat_messages"

// The notification carries the row without its body: NOTIFY payloads are
// limited to 8000 bytes and listeners fetch the full row anyway.
var triggerStatements = []string{
	`CREATE OR REPLACE FUNCTION notify_chat_message() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('` + notifyChannel + `', json_build_object(
		'id', NEW.id,
		'room_id', NEW.room_id,
		'author_id', NEW.author_id,
		'created_at', NEW.created_at
	)::text);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS chat_messages_notify ON chat_messages`,
	`CREATE TRIGGER chat_messages_notify AFTER INSERT ON chat_messages
	FOR EACH ROW EXECUTE FUNCTION notify_chat_message()`,
}

var indexStatements = []string{
	`CREATE INDEX IF NOT EXISTS posts_created_at_idx ON posts (created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS comments_post_id_idx ON comments (post_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS chat_participants_user_id_idx ON chat_participants (user_id)`,
	`CREATE INDEX IF NOT EXISTS chat_messages_room_id_idx ON chat_messages (room_id, created_at)`,
}

// CreateSchema creates the tables, indexes and the notification trigger if
// they do not exist yet.
func (pg *Postgres) CreateSchema(ctx context.Context) error {
	tables := []struct {
		model       interface{}
		foreignKeys []string
	}{
		{model: (*profile)(nil)},
		{model: (*post)(nil)},
		{model: (*like)(nil), foreignKeys: []string{`(post_id) REFERENCES posts (id) ON DELETE CASCADE`}},
		{model: (*comment)(nil), foreignKeys: []string{`(post_id) REFERENCES posts (id) ON DELETE CASCADE`}},
		{model: (*chatRoom)(nil)},
		{model: (*chatParticipant)(nil), foreignKeys: []string{`(room_id) REFERENCES chat_rooms (id) ON DELETE CASCADE`}},
		{model: (*chatMessage)(nil), foreignKeys: []string{`(room_id) REFERENCES chat_rooms (id) ON DELETE CASCADE`}},
	}

	for _, t := range tables {
		q := pg.bun.NewCreateTable().Model(t.model).IfNotExists()
		for _, fk := range t.foreignKeys {
			q = q.ForeignKey(fk)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	stmts := append(append([]string{}, indexStatements...), triggerStatements...)
	for _, stmt := range stmts {
		if _, err := pg.bun.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}
	return nil
}
