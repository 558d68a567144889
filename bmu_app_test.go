package main

import (
	"testing"

	"bmu-service/bmu"

	"github.com/stretchr/testify/assert"
)

func TestBMUApp_HandleReport(t *testing.T) {
	s, client := newTestRedis(t)
	logger := newQuietLogger()
	app := &BMUApp{
		log:   logger,
		ipcTx: NewIPCTx(logger, client, bmu.DefaultConfig().Transducers),
		diag:  NewDiag(logger, client),
	}

	r := testReport(bmu.EmitChange)
	r.Status.SafeToDrive = false
	r.Status.Faults.OverTemperature = true
	r.TransportFault = true

	app.handleReport(r)

	assert.Equal(t, "no", s.HGet("bmu", "safe-to-drive"))
	for _, code := range []string{"5", "8"} {
		member, err := s.IsMember("bmu:fault", code)
		assert.NoError(t, err)
		assert.True(t, member, "fault %s should be present", code)
	}
}

func TestBMUApp_EnqueueReportDoesNotBlock(t *testing.T) {
	app := &BMUApp{
		log:     newQuietLogger(),
		reports: make(chan bmu.Report, 1),
	}

	app.enqueueReport(testReport(bmu.EmitTick))
	app.enqueueReport(testReport(bmu.EmitChange))

	assert.Len(t, app.reports, 1)
	assert.Equal(t, bmu.EmitTick, (<-app.reports).Reason)
}
