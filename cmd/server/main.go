package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/kaitanna/kaitanna-backend/internal/ai"
	"github.com/kaitanna/kaitanna-backend/internal/auth"
	"github.com/kaitanna/kaitanna-backend/internal/config"
	"github.com/kaitanna/kaitanna-backend/internal/database"
	"github.com/kaitanna/kaitanna-backend/internal/kv"
	"github.com/kaitanna/kaitanna-backend/internal/logger"
	"github.com/kaitanna/kaitanna-backend/internal/middleware"
	"github.com/kaitanna/kaitanna-backend/internal/routes"
	"github.com/kaitanna/kaitanna-backend/internal/services"
	"github.com/kaitanna/kaitanna-backend/pkg/clientip"
	"github.com/kaitanna/kaitanna-backend/pkg/utils"
)

const shutdownTimeout = 10 * time.Second

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	log, err := logger.New(cfg.IsProduction())
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if envErr != nil {
		log.Info("no .env file found, using process environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mongoDB := connectMongo(cfg, log)
	if mongoDB != nil {
		defer database.DisconnectMongo(mongoDB)
	}
	pg := connectPostgres(cfg, log)
	if pg != nil {
		defer pg.Close()
	}
	redisClient := connectRedis(cfg, log)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var store kv.Store = kv.NewMemory()
	if redisClient != nil {
		store = kv.NewRedis(redisClient)
		log.Info("✅ key-value store: Redis")
	} else {
		log.Warn("⚠️  key-value store: in-memory, data will not survive a restart")
	}

	var cipher *utils.Cipher
	if cfg.EncryptionKey == "" {
		log.Warn("⚠️  ENCRYPTION_KEY not set, journal content is stored unencrypted (generate one with: openssl rand -base64 32)")
	} else if cipher, err = utils.NewCipher(cfg.EncryptionKey); err != nil {
		log.Warn("⚠️  ENCRYPTION_KEY is invalid, journal content is stored unencrypted", zap.Error(err))
		cipher = nil
	} else {
		log.Info("✅ encryption key configured")
	}

	// Identity
	var users auth.UserDirectory = auth.NewKVDirectory(store, log)
	if pg != nil {
		users = auth.NewPostgresDirectory(pg)
	}
	var bus auth.Bus = auth.NewHub()
	if redisClient != nil {
		redisBus := auth.NewRedisBus(redisClient, log)
		go redisBus.Run(ctx)
		bus = redisBus
	}
	authService := auth.NewService(
		users,
		auth.NewSessionRegistry(store),
		auth.NewTokens(cfg.JWTSecret, auth.SessionDuration),
		bus,
		log,
	)

	// Moods and journals
	loc := cfg.Location()
	moods := services.NewMoodStore(store, loc, log)

	var journalRemote services.JournalRemote
	var chatRepo services.ChatRepository
	if mongoDB != nil {
		mongoJournals := services.NewMongoJournals(mongoDB, cipher)
		mongoChats := services.NewMongoChats(mongoDB)
		ensureIndexes(ctx, log, "journal", mongoJournals.EnsureIndexes)
		ensureIndexes(ctx, log, "chat", mongoChats.EnsureIndexes)
		journalRemote = mongoJournals
		chatRepo = mongoChats
		if redisClient != nil {
			chatRepo = services.NewCachedChats(mongoChats, redisClient, log)
		}
	} else {
		log.Warn("⚠️  MongoDB not configured: journals are stored locally and chat is disabled")
	}
	journals := services.NewJournalStore(journalRemote, store, log)

	// Chat
	generator, err := ai.New(cfg.AI)
	if err != nil {
		log.Warn("⚠️  AI provider misconfigured, chat is disabled", zap.Error(err))
		generator = nil
	} else if generator == nil {
		log.Warn("⚠️  AI_PROVIDER/AI_API_KEY not set, chat is disabled")
	}
	chat := services.NewChatService(chatRepo, generator, log)
	if chat.Available() {
		log.Info("✅ chat enabled", zap.String("provider", cfg.AI.Provider))
	}

	var avatars services.AvatarUploader
	if cfg.HasCloudinary() {
		cld, err := services.NewCloudinaryService(cfg.CloudinaryName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
		if err != nil {
			log.Warn("⚠️  failed to initialize Cloudinary, avatar uploads are disabled", zap.Error(err))
		} else {
			avatars = cld
			log.Info("✅ Cloudinary service initialized")
		}
	} else {
		log.Warn("⚠️  Cloudinary credentials not found, avatar uploads are disabled")
	}

	authService.OnAccountDelete(moods.DeleteAllForUser)
	authService.OnAccountDelete(journals.DeleteAllForUser)
	authService.OnAccountDelete(chat.DeleteAllForUser)

	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	if cfg.IsProduction() {
		ips, err := clientip.NewResolver(cfg.TrustedProxies)
		if err != nil {
			log.Warn("⚠️  invalid TRUSTED_PROXIES, rate limits key on the direct peer", zap.Error(err))
			ips = nil
		}
		for _, mw := range middleware.ProductionSecurity(ips) {
			r.Use(mw)
		}
		log.Info("✅ production security enabled (security headers, per-IP and login rate limiting)")
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	routes.SetupRoutes(r, routes.Deps{
		Auth:              authService,
		Moods:             moods,
		Journals:          journals,
		Chat:              chat,
		Avatars:           avatars,
		GenerationLimiter: middleware.GenerationLimiter(redisClient),
		Location:          loc,
		Log:               log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("🚀 Kaitanna backend running", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}

func connectMongo(cfg *config.Config, log *zap.Logger) *mongo.Database {
	if cfg.MongoURI == "" {
		return nil
	}
	log.Info("connecting to MongoDB", zap.String("uri", logger.MaskURI(cfg.MongoURI)))
	db, err := database.ConnectMongo(cfg.MongoURI)
	if err != nil {
		log.Warn("⚠️  MongoDB unavailable, continuing without it", zap.Error(err))
		return nil
	}
	log.Info("✅ connected to MongoDB", zap.String("database", db.Name()))
	return db
}

func connectPostgres(cfg *config.Config, log *zap.Logger) *sql.DB {
	if cfg.PostgresURI == "" {
		log.Info("POSTGRES_URI not set, users are kept in the key-value store")
		return nil
	}
	log.Info("connecting to PostgreSQL", zap.String("uri", logger.MaskURI(cfg.PostgresURI)))
	db, err := database.ConnectPostgres(cfg.PostgresURI)
	if err != nil {
		log.Warn("⚠️  PostgreSQL unavailable, users are kept in the key-value store", zap.Error(err))
		return nil
	}
	log.Info("✅ connected to PostgreSQL")
	return db
}

func connectRedis(cfg *config.Config, log *zap.Logger) *redis.Client {
	if cfg.RedisURI == "" {
		return nil
	}
	log.Info("connecting to Redis", zap.String("uri", logger.MaskURI(cfg.RedisURI)))
	client, err := database.ConnectRedis(cfg.RedisURI)
	if err != nil {
		log.Warn("⚠️  Redis unavailable, using in-process fallbacks", zap.Error(err))
		return nil
	}
	log.Info("✅ connected to Redis")
	return client
}

func ensureIndexes(ctx context.Context, log *zap.Logger, name string, ensure func(context.Context) error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := ensure(ctx); err != nil {
		log.Warn("⚠️  failed to ensure MongoDB indexes", zap.String("collection", name), zap.Error(err))
		return
	}
	log.Info("✅ MongoDB indexes ensured", zap.String("collection", name))
}
