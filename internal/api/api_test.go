package api_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framehub/framehub/core/internal/api"
	"github.com/framehub/framehub/core/internal/apitest"
	"github.com/framehub/framehub/core/internal/clients"
	"github.com/framehub/framehub/core/internal/observability"
)

func newTestClient(t *testing.T) (*api.Client, *apitest.FakeGallery) {
	t.Helper()
	gallery := apitest.NewFakeGallery()
	t.Cleanup(gallery.Close)

	client := api.New(
		gallery.Server.URL,
		clients.NewRetryClient(clients.WithRetryClientRetryMax(0)),
		observability.NewNoOpLogger(),
	)
	return client, gallery
}

func TestAllocateDestination(t *testing.T) {
	client, _ := newTestClient(t)

	dest, err := client.AllocateDestination(
		context.Background(),
		api.DestinationRequest{
			LocalID:          "task1",
			MimeType:         "image/jpeg",
			FileSize:         123,
			OriginalFilename: "sunrise.jpg",
		},
	)

	require.NoError(t, err)
	assert.Contains(t, dest.SignedURL, "/blob/task1")
	assert.Equal(t, "media/task1/sunrise.jpg", dest.StoragePath)
	assert.NotEmpty(t, dest.Token)
}

func TestAllocateDestinationIsIdempotent(t *testing.T) {
	client, gallery := newTestClient(t)

	req := api.DestinationRequest{LocalID: "task1", OriginalFilename: "a.jpg"}

	first, err := client.AllocateDestination(context.Background(), req)
	require.NoError(t, err)
	second, err := client.AllocateDestination(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, gallery.AllocateCalls())
}

func TestAllocateDestinationServerError(t *testing.T) {
	client, gallery := newTestClient(t)
	gallery.FailAllocation = true

	_, err := client.AllocateDestination(
		context.Background(),
		api.DestinationRequest{LocalID: "task1"},
	)

	assert.ErrorContains(t, err, "allocate destination")
}

func TestConfirmUploadsDeduplicates(t *testing.T) {
	client, gallery := newTestClient(t)

	req := api.ConfirmRequest{
		ContainerID: "gallery9",
		Uploads: []api.ConfirmedUpload{
			{StoragePath: "media/t1/a.jpg", Token: "tok1", FileSize: 5},
		},
	}

	require.NoError(t, client.ConfirmUploads(context.Background(), req))
	require.NoError(t, client.ConfirmUploads(context.Background(), req))

	assert.Len(t, gallery.Confirmed(), 1)
	assert.Equal(t, 2, gallery.ConfirmCalls())
}
