package imc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferSendLifecycle(t *testing.T) {
	var b Buffer[Photon]
	require.True(t, b.Empty())

	b.Fill([]Photon{{Cell: 3}})
	require.True(t, b.Empty(), "fill leaves the flag unchanged")
	require.Len(t, b.Storage(), 1)

	b.SetSent()
	require.True(t, b.Sent())

	b.Reset()
	require.True(t, b.Empty())
	require.Nil(t, b.Storage())
}

func TestBufferRecvLifecycle(t *testing.T) {
	var b Buffer[uint64]
	b.SetAwaiting()
	require.True(t, b.Awaiting())

	b.Receive([]uint64{17})
	require.True(t, b.Received())
	require.Equal(t, uint64(17), b.Storage()[0])

	b.Reset()
	require.True(t, b.Empty())
}

func TestBufferIllegalTransitionsPanic(t *testing.T) {
	require.Panics(t, func() {
		var b Buffer[uint64]
		b.Reset() // empty -> reset
	})
	require.Panics(t, func() {
		var b Buffer[uint64]
		b.SetAwaiting()
		b.Fill([]uint64{1}) // mutate while awaiting
	})
	require.Panics(t, func() {
		var b Buffer[uint64]
		b.Fill([]uint64{1})
		b.SetSent()
		b.Storage() // read while leased to the message layer
	})
	require.Panics(t, func() {
		var b Buffer[uint64]
		b.SetAwaiting()
		b.SetSent() // awaiting -> sent
	})
	require.Panics(t, func() {
		var b Buffer[uint64]
		b.Receive([]uint64{1}) // receive with no posted recv
	})
}
