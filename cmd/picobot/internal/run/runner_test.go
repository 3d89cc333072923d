package run

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/picobot/pkg/bus"
	"github.com/sipeed/picobot/pkg/config"
)

func memoryConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Storage.Driver = config.StorageMemory
	cfg.Bot.Timezone = "UTC"
	return cfg
}

func TestBuildRegistry_AllCommands(t *testing.T) {
	st, err := openStores(context.Background(), memoryConfig())
	require.NoError(t, err)
	defer st.Close()

	reg, err := buildRegistry(memoryConfig(), st.tree)
	require.NoError(t, err)

	names := make([]string, 0)
	for _, def := range reg.Definitions() {
		names = append(names, def.Name)
	}
	assert.ElementsMatch(t, []string{"start", "help", "files", "calc", "timedelta"}, names)
	assert.Contains(t, reg.Codec().Namespaces(), "fs")
}

func TestBuildRegistry_BadTimezone(t *testing.T) {
	cfg := memoryConfig()
	cfg.Bot.Timezone = "Mars/Olympus"
	st, err := openStores(context.Background(), cfg)
	require.NoError(t, err)
	defer st.Close()

	_, err = buildRegistry(cfg, st.tree)
	assert.Error(t, err)
}

func TestOpenStores_SQLiteSharesOneFile(t *testing.T) {
	cfg := memoryConfig()
	cfg.Storage.Driver = config.StorageSQLite
	cfg.Storage.Path = filepath.Join(t.TempDir(), "data", "bot.db")

	st, err := openStores(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, st.db)
	assert.NoError(t, st.Close())
	assert.FileExists(t, cfg.Storage.Path)
}

func TestRunner_EndToEnd(t *testing.T) {
	for _, driver := range []string{config.StorageMemory, config.StorageSQLite} {
		t.Run(driver, func(t *testing.T) {
			cfg := memoryConfig()
			cfg.Storage.Driver = driver
			cfg.Storage.Path = filepath.Join(t.TempDir(), "bot.db")

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			r, err := newRunner(ctx, cfg, false)
			require.NoError(t, err)

			done := make(chan error, 1)
			go func() { done <- r.run(ctx, &bytes.Buffer{}) }()

			send := func(text string) *bus.NewMessage {
				t.Helper()
				require.True(t, r.msgBus.PublishInbound(ctx, bus.InboundMessage{
					Channel: "test",
					Event:   &bus.TextMessage{ChatID: 10, UserID: 20, MessageID: 1, Text: text},
				}))
				wait, stop := context.WithTimeout(ctx, 2*time.Second)
				defer stop()
				out, ok := r.msgBus.SubscribeOutbound(wait)
				require.True(t, ok, "no reply to %q", text)
				msg, ok := out.Reply.(*bus.NewMessage)
				require.True(t, ok, "reply to %q is %T", text, out.Reply)
				return msg
			}

			assert.Contains(t, send("/calc").Text, "compute")
			assert.Contains(t, send("2+2").Text, "4")
			assert.Contains(t, send("/files").Text, "Folder")

			cancel()
			require.NoError(t, <-done)

			stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
			defer stopCancel()
			r.stop(stopCtx)
		})
	}
}
