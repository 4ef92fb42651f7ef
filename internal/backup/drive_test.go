package backup

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
)

func TestDriveQuery(t *testing.T) {
	t.Run("Plain", func(t *testing.T) {
		assert.Equal(t, "name = 'citas.db' and trashed = false", driveQuery("citas.db", ""))
		assert.Equal(t, "name = 'citas.db' and trashed = false and 'folder1' in parents", driveQuery("citas.db", "folder1"))
	})

	t.Run("EscapesName", func(t *testing.T) {
		assert.Equal(t, `name = 'o\'brien.db' and trashed = false`, driveQuery("o'brien.db", ""))
		assert.Equal(t, `name = 'a\\b.db' and trashed = false`, driveQuery(`a\b.db`, ""))
	})

	t.Run("EscapesFolder", func(t *testing.T) {
		assert.Equal(t,
			`name = 'citas.db' and trashed = false and 'x\' or \'1\'=\'1' in parents`,
			driveQuery("citas.db", "x' or '1'='1"))
	})
}

func TestClassifyDriveError(t *testing.T) {
	assert.NoError(t, classifyDriveError(nil))

	err := classifyDriveError(&googleapi.Error{Code: http.StatusUnauthorized, Message: "Invalid Credentials"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = classifyDriveError(&googleapi.Error{Code: http.StatusNotFound, Message: "File not found"})
	assert.ErrorIs(t, err, ErrNotFound)

	other := errors.New("boom")
	assert.Equal(t, other, classifyDriveError(other))

	err = classifyDriveError(&googleapi.Error{Code: http.StatusForbidden})
	assert.NotErrorIs(t, err, ErrUnauthorized)
}
