package mongo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestCollections_CoverEveryStore(t *testing.T) {
	names := make([]string, 0)
	for _, def := range Collections() {
		names = append(names, def.Name)
	}
	assert.ElementsMatch(t, []string{"appointments", "counters", "idempotency_keys", "otp_challenges"}, names)
}

func TestAppointmentsIndexes_OccupancyIsUniqueForConfirmedOnly(t *testing.T) {
	idx := AppointmentsIndexes[0]

	assert.Equal(t, bson.D{
		{Key: "employee_id", Value: 1},
		{Key: "date", Value: 1},
		{Key: "time", Value: 1},
	}, idx.Keys)
	require.NotNil(t, idx.Options.Unique)
	assert.True(t, *idx.Options.Unique)
	assert.Equal(t, bson.M{"status": "confirmed"}, idx.Options.PartialFilterExpression)
}

func TestExpiringCollections_HaveTTLIndex(t *testing.T) {
	for _, idx := range append(IdempotencyIndexes, OtpChallengesIndexes...) {
		require.NotNil(t, idx.Options.ExpireAfterSeconds)
		assert.Equal(t, int32(0), *idx.Options.ExpireAfterSeconds)
	}
}
