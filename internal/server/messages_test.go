package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseConstructors(t *testing.T) {
	ok := NoErrOK(3, "payload")
	assert.Equal(t, 3, ok.Id)
	assert.Equal(t, EventResponse, ok.Event)
	assert.Equal(t, http.StatusOK, ok.Response.ResponseCode)
	assert.Equal(t, "payload", ok.Response.Data)

	accepted := NoErrAccepted(4, nil)
	assert.Equal(t, http.StatusAccepted, accepted.Response.ResponseCode)

	notFound := ErrRoomNotFound(5)
	assert.Equal(t, http.StatusNotFound, notFound.Response.ResponseCode)
	assert.Equal(t, "room not found", notFound.Response.Error)

	archived := ErrRoomArchived(6)
	assert.Equal(t, http.StatusConflict, archived.Response.ResponseCode)
}

func TestErrInvalidMessage(t *testing.T) {
	// a parse failure has no usable message id
	msg := ErrInvalidMessage(-1)
	assert.Equal(t, 0, msg.Id, "expected no id for unparseable messages")
	assert.Equal(t, http.StatusBadRequest, msg.Response.ResponseCode)

	msg = ErrInvalidMessage(9)
	assert.Equal(t, 9, msg.Id, "expected id to be echoed when known")
}
