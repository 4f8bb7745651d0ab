package mongo

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/IlyasAtabaev731/tcg-trade/internal/api"
	"github.com/IlyasAtabaev731/tcg-trade/internal/storage"
	"github.com/IlyasAtabaev731/tcg-trade/internal/storage/storagetest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

// TestStorage needs a replica set since trades run in multi-document
// transactions, e.g. TEST_MONGO_URI=mongodb://localhost:27017/?replicaSet=rs0
func TestStorage(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI is not set")
	}

	storagetest.Run(t, func(t *testing.T) api.Storage {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		name := "tcg_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
		s, err := New(ctx, uri, name)
		require.NoError(t, err)

		t.Cleanup(func() {
			_ = s.client.Database(name).Drop(context.Background())
			_ = s.Stop()
		})
		return s
	})
}

func TestSubstring(t *testing.T) {
	re := substring("Mr. Mime")
	assert.Equal(t, `Mr\. Mime`, re.Pattern)
	assert.Equal(t, "i", re.Options)
}

func TestUserConflictPassesOtherErrors(t *testing.T) {
	err := context.DeadlineExceeded
	assert.Equal(t, err, userConflict(err))
}

func duplicateKey(msg string) error {
	return mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: msg}}}
}

func TestUserConflict(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{
			"name",
			duplicateKey(`E11000 duplicate key error collection: tcg.users index: name_1 dup key: { name: "ash" }`),
			storage.ErrUserExists,
		},
		{
			"name containing email",
			duplicateKey(`E11000 duplicate key error collection: tcg.users index: name_1 dup key: { name: "myemail" }`),
			storage.ErrUserExists,
		},
		{
			"email",
			duplicateKey(`E11000 duplicate key error collection: tcg.users index: email_1 dup key: { email: "ash@example.com" }`),
			storage.ErrEmailExists,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, userConflict(tc.err), tc.want)
		})
	}
}
