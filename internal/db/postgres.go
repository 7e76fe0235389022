package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/yungbote/chatbridge-backend/internal/platform/envutil"
	"github.com/yungbote/chatbridge-backend/internal/platform/logger"
	"github.com/yungbote/chatbridge-backend/internal/types"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(baseLog *logger.Logger) (*PostgresService, error) {
	serviceLog := baseLog.With("service", "PostgresService")

	host := envutil.Str("POSTGRES_HOST", "localhost")
	port := envutil.Str("POSTGRES_PORT", "5432")
	user := envutil.Str("POSTGRES_USER", "postgres")
	password := envutil.Str("POSTGRES_PASSWORD", "")
	name := envutil.Str("POSTGRES_NAME", "chatbridge")

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)

	serviceLog.Info("Connecting to Postgres...")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		serviceLog.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		serviceLog.Error("Failed to enable uuid-ossp extension", "error", err)
		return nil, fmt.Errorf("failed to enable uuid-ossp extension: %w", err)
	}

	return &PostgresService{db: db, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&types.User{},
		&types.UserToken{},
		&types.Chat{},
		&types.Message{},
		&types.Document{},
		&types.DocumentChunk{},
		&types.Memory{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}

	s.log.Info("Configuring foreign key relationships for postgres tables...")
	constraints := []struct {
		name string
		ddl  string
	}{
		{"fk_user_token_user_id", `ALTER TABLE "user_token" ADD CONSTRAINT "fk_user_token_user_id" FOREIGN KEY ("user_id") REFERENCES "user"("id") ON DELETE CASCADE`},
		{"fk_chat_user_id", `ALTER TABLE "chat" ADD CONSTRAINT "fk_chat_user_id" FOREIGN KEY ("user_id") REFERENCES "user"("id") ON DELETE CASCADE`},
		{"fk_message_chat_id", `ALTER TABLE "message" ADD CONSTRAINT "fk_message_chat_id" FOREIGN KEY ("chat_id") REFERENCES "chat"("id") ON DELETE CASCADE`},
		{"fk_document_user_id", `ALTER TABLE "document" ADD CONSTRAINT "fk_document_user_id" FOREIGN KEY ("user_id") REFERENCES "user"("id") ON DELETE CASCADE`},
		{"fk_document_chunk_document_id", `ALTER TABLE "document_chunk" ADD CONSTRAINT "fk_document_chunk_document_id" FOREIGN KEY ("document_id") REFERENCES "document"("id") ON DELETE CASCADE`},
		{"fk_memory_user_id", `ALTER TABLE "memory" ADD CONSTRAINT "fk_memory_user_id" FOREIGN KEY ("user_id") REFERENCES "user"("id") ON DELETE CASCADE`},
		{"fk_memory_chat_id", `ALTER TABLE "memory" ADD CONSTRAINT "fk_memory_chat_id" FOREIGN KEY ("chat_id") REFERENCES "chat"("id") ON DELETE SET NULL`},
	}
	for _, c := range constraints {
		drop := fmt.Sprintf(`ALTER TABLE %s DROP CONSTRAINT IF EXISTS %q`, tableOf(c.ddl), c.name)
		if err := s.db.Exec(drop).Error; err != nil {
			return fmt.Errorf("failed to drop %s: %w", c.name, err)
		}
		if err := s.db.Exec(c.ddl).Error; err != nil {
			return fmt.Errorf("failed to add %s: %w", c.name, err)
		}
	}
	return nil
}

func tableOf(ddl string) string {
	// DDL statements all start with `ALTER TABLE "name"`.
	var table string
	_, _ = fmt.Sscanf(ddl, "ALTER TABLE %s", &table)
	return table
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
