package dispatch

import (
	"net"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/airfield-guard/internal/fanout"
	"github.com/technosupport/airfield-guard/internal/model"
	"github.com/technosupport/airfield-guard/internal/repo"
)

func TestBirdRiskChangeBroadcastsAndAppends(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repository := repo.NewWithDB(db, nil)

	mock.ExpectQuery("SELECT curr_level FROM bird_risk_log").
		WillReturnRows(sqlmock.NewRows([]string{"curr_level"}))
	mock.ExpectExec("INSERT INTO bird_risk_log").WillReturnResult(sqlmock.NewResult(1, 1))

	hub := fanout.NewHub()
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	ctrl := fanout.NewSession("c1", model.RoleController, serverConn)
	hub.Register(ctrl)
	go ctrl.RunWriter()
	defer ctrl.Close()

	b := NewBirdRiskServer(hub, repository)
	serverIn, clientIn := net.Pipe()
	go b.HandleConn(serverIn)

	_, err = clientIn.Write([]byte(`{"type":"event","event":"BR_CHANGED","result":"BR_HIGH"}` + "\n"))
	require.NoError(t, err)

	buf := make([]byte, 64)
	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := clientConn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ME_BR:1\n", string(buf[:n]))

	clientIn.Close()
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBirdRiskNoChangeDoesNotRebroadcast(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repository := repo.NewWithDB(db, nil)

	mock.ExpectQuery("SELECT curr_level FROM bird_risk_log").
		WillReturnRows(sqlmock.NewRows([]string{"curr_level"}).AddRow(int(model.BirdRiskLow)))

	hub := fanout.NewHub()
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	ctrl := fanout.NewSession("c1", model.RoleController, serverConn)
	hub.Register(ctrl)
	defer ctrl.Close()

	b := NewBirdRiskServer(hub, repository)
	b.handleLevel(model.BirdRiskLow)

	assert.Len(t, ctrl.Out, 0, "unchanged level must not rebroadcast")
}
