package models

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

func TestModelsParse(t *testing.T) {
	cache := &sync.Map{}
	for _, model := range []interface{}{&Account{}, &Email{}, &EmailAttachment{}} {
		s, err := schema.Parse(model, cache, schema.NamingStrategy{})
		require.NoError(t, err)
		assert.Empty(t, s.Relationships.Relations)
	}

	s, err := schema.Parse(&Email{}, cache, schema.NamingStrategy{})
	require.NoError(t, err)
	assert.Equal(t, schema.DataType("text"), s.LookUpField("labels").DataType)
}

func TestStringArray_ValueAndScan(t *testing.T) {
	value, err := StringArray{"INBOX", "Sent Items"}.Value()
	require.NoError(t, err)

	var out StringArray
	require.NoError(t, out.Scan(value))
	assert.Equal(t, StringArray{"INBOX", "Sent Items"}, out)

	var empty StringArray
	require.NoError(t, empty.Scan(nil))
	assert.Nil(t, empty)
}
