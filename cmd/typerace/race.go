package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/typerace/internal/config"
	"github.com/verte-zerg/typerace/internal/docstore"
	"github.com/verte-zerg/typerace/internal/model"
	"github.com/verte-zerg/typerace/internal/room"
	"github.com/verte-zerg/typerace/internal/store"
	"github.com/verte-zerg/typerace/internal/tui"
)

const (
	backendMemory = "memory"
	backendRedis  = "redis"
	gameModeWords = "words"
)

var (
	raceBackend string
	raceName    string
)

func newRaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "race",
		Short: "Race other typists in a shared room",
	}
	cmd.PersistentFlags().StringVar(&raceBackend, "backend", backendMemory, "room backend (memory, redis); redis when "+config.RedisAddrVar+" is set")
	cmd.PersistentFlags().StringVar(&raceName, "name", "", "name shown to other racers")

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a room and wait for racers",
		Args:  cobra.NoArgs,
		RunE:  runRaceCreateCmd,
	}
	addPracticeFlags(createCmd)

	joinCmd := &cobra.Command{
		Use:   "join <room-id>",
		Short: "Join a waiting room",
		Args:  cobra.ExactArgs(1),
		RunE:  runRaceJoinCmd,
	}
	joinCmd.Flags().StringVar(&practicePolicy, "policy", defaultPolicy, "anti-cheat policy (default, advisory)")

	startCmd := &cobra.Command{
		Use:   "start <room-id>",
		Short: "Start a waiting room you host",
		Args:  cobra.ExactArgs(1),
		RunE:  runRaceStartCmd,
	}

	cmd.AddCommand(createCmd, joinCmd, startCmd)
	return cmd
}

// raceEnv is everything a race command needs once config is resolved.
type raceEnv struct {
	cfg    model.Config
	userID string
	name   string
	docs   *docstore.Store
}

func (e *raceEnv) close() {
	if err := e.docs.Close(); err != nil {
		logErrf("failed to close room backend: %v\n", err)
	}
}

// setupRace resolves config and opens the room backend. A non-empty action
// names a command that reaches a room created by another process, which
// the in-process backend cannot serve.
func setupRace(ctx context.Context, cmd *cobra.Command, action string) (*raceEnv, error) {
	fileCfg, err := loadFileConfig(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := practiceConfig(cmd, fileCfg)
	if err != nil {
		return nil, err
	}
	explicit := cmd.Flags().Changed("backend") || fileCfg.Race.Backend != nil
	applyStringConfig(cmd, "backend", &raceBackend, fileCfg.Race.Backend)
	applyStringConfig(cmd, "name", &raceName, fileCfg.Race.Name)

	envCfg, err := config.LoadEnv()
	if err != nil {
		return nil, err
	}
	_, redisSet := os.LookupEnv(config.RedisAddrVar)
	raceBackend = chooseBackend(explicit, raceBackend, redisSet)
	if action != "" {
		if err := requireSharedBackend(raceBackend, action); err != nil {
			return nil, err
		}
	}
	docs, err := openDocuments(ctx, raceBackend, envCfg)
	if err != nil {
		return nil, err
	}
	id := strings.TrimSpace(envCfg.UserID)
	if id == "" {
		id = uuid.NewString()
	}
	name := strings.TrimSpace(raceName)
	if name == "" {
		name = defaultRacerName()
	}
	return &raceEnv{cfg: cfg, userID: id, name: name, docs: docs}, nil
}

// chooseBackend resolves the room backend. A flag or config value wins;
// otherwise Redis is picked when its address is set in the environment.
func chooseBackend(explicit bool, backend string, redisAddrSet bool) string {
	if !explicit && redisAddrSet {
		return backendRedis
	}
	return backend
}

// requireSharedBackend rejects the memory backend for commands that act on a
// room from a second process.
func requireSharedBackend(backend, action string) error {
	if backend == backendMemory {
		return fmt.Errorf("cannot %s a room on the %s backend: its rooms exist only inside the process that created them; use --backend %s or set %s",
			action, backendMemory, backendRedis, config.RedisAddrVar)
	}
	return nil
}

func defaultRacerName() string {
	if name := strings.TrimSpace(os.Getenv("USER")); name != "" {
		return name
	}
	return "anonymous"
}

// openDocuments returns the room document store for backend. The Redis
// connection is retried with exponential backoff before giving up.
func openDocuments(ctx context.Context, backend string, envCfg config.EnvConfig) (*docstore.Store, error) {
	switch backend {
	case backendMemory:
		logrus.Debug("using in-process room backend")
		return docstore.NewMemory(), nil
	case backendRedis:
		if err := envCfg.Validate(); err != nil {
			return nil, err
		}
		client := redis.NewClient(&redis.Options{
			Addr:     envCfg.RedisAddr,
			Password: envCfg.RedisPassword,
			DB:       envCfg.RedisDB,
		})
		if err := pingRedis(ctx, client, envCfg.RedisMaxRetries); err != nil {
			if cerr := client.Close(); cerr != nil {
				logrus.Warnf("failed to close redis client: %v", cerr)
			}
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", envCfg.RedisAddr, err)
		}
		logrus.WithField("addr", envCfg.RedisAddr).Info("connected to redis")
		return docstore.NewRedis(client, docstore.DefaultKeyPrefix), nil
	default:
		return nil, fmt.Errorf("unknown race backend %q (want %s or %s)", backend, backendMemory, backendRedis)
	}
}

func pingRedis(ctx context.Context, client *redis.Client, maxRetries uint64) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	return backoff.Retry(func() error {
		_, err := client.Ping(ctx).Result()
		if err != nil {
			logrus.Warnf("redis ping failed, retrying: %v", err)
		}
		return err
	}, b)
}

func runRaceCreateCmd(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	env, err := setupRace(ctx, cmd, "")
	if err != nil {
		return err
	}
	defer env.close()

	gen, err := newGenerator(env.cfg)
	if err != nil {
		return err
	}
	rooms := room.NewService(env.docs, room.WithText(gen, env.cfg.Words))
	roomID, err := rooms.CreateRoom(ctx, env.userID, env.name, gameModeWords)
	if err != nil {
		return err
	}
	if raceBackend == backendMemory {
		logErrf("Room %s created on the %s backend; set %s to race from other terminals.\n", roomID, backendMemory, config.RedisAddrVar)
	} else {
		logErrf("Room %s created. Others join with: typerace race join %s --backend %s\n", roomID, roomID, raceBackend)
	}
	return runRace(ctx, env, rooms, roomID)
}

func runRaceJoinCmd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	env, err := setupRace(ctx, cmd, "join")
	if err != nil {
		return err
	}
	defer env.close()

	roomID := args[0]
	rooms := room.NewService(env.docs)
	joined, err := rooms.JoinRoom(ctx, roomID, env.userID, env.name)
	if err != nil {
		return err
	}
	if !joined {
		return fmt.Errorf("room %s is missing or already started", roomID)
	}
	return runRace(ctx, env, rooms, roomID)
}

func runRaceStartCmd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	env, err := setupRace(ctx, cmd, "start")
	if err != nil {
		return err
	}
	defer env.close()

	roomID := args[0]
	rooms := room.NewService(env.docs)
	snap, err := rooms.Room(ctx, roomID)
	if err != nil {
		return err
	}
	if snap.HostID != env.userID {
		return fmt.Errorf("only the host can start room %s (set TYPERACE_USER_ID to the host's id)", roomID)
	}
	if err := rooms.SetGameStatus(ctx, roomID, model.RoomStarting); err != nil {
		return err
	}
	if err := rooms.SetGameStatus(ctx, roomID, model.RoomPlaying); err != nil {
		return err
	}
	logErrln("Race started.")
	return nil
}

func runRace(ctx context.Context, env *raceEnv, rooms *room.Service, roomID string) error {
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()
	submitter, err := newSubmitter(env.cfg.Policy, st)
	if err != nil {
		return err
	}
	opts := tui.Options{
		UserID:   env.userID,
		Lang:     env.cfg.Lang,
		Duration: env.cfg.Duration,
	}
	m, err := tui.NewRaceModel(ctx, opts, rooms, roomID, submitter, st)
	if err != nil {
		return err
	}
	defer m.Close()
	return runProgram(m)
}
