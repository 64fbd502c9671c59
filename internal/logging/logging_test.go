package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("ParsesLevel", func(t *testing.T) {
		assert.Equal(t, logrus.DebugLevel, New("DEBUG", "text").GetLevel())
		assert.Equal(t, logrus.WarnLevel, New("warn", "text").GetLevel())
	})

	t.Run("UnknownLevelFallsBackToInfo", func(t *testing.T) {
		assert.Equal(t, logrus.InfoLevel, New("chatty", "text").GetLevel())
	})
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOutput("info", "json", &buf)

	WithComponent(logger, "mealplan").WithField("slot", "TuesdayDinner").Info("saved")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "mealplan", entry["component"])
	assert.Equal(t, "TuesdayDinner", entry["slot"])
	assert.Equal(t, "saved", entry["msg"])
}
