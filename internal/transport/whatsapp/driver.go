// Package whatsapp implements the transport contract on the WhatsApp
// multi-device protocol via whatsmeow. The driver registers itself under
// the name "whatsapp"; call Configure before the first Dial.
package whatsapp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/wagatehq/wagate/internal/transport"
)

// DriverName is the name this driver registers under.
const DriverName = "whatsapp"

var driver = &dialer{}

func init() {
	transport.Register(DriverName, driver)
}

// Config carries the process-wide driver settings. Device identities are
// kept in the whatsmeow tables of the same Postgres database the gateway
// uses for its own state.
type Config struct {
	DSN    string
	Logger *slog.Logger
}

// Configure sets the driver configuration.
func Configure(cfg Config) {
	driver.mu.Lock()
	defer driver.mu.Unlock()
	driver.cfg = cfg
}

type dialer struct {
	mu        sync.Mutex
	cfg       Config
	container *sqlstore.Container
}

// openStore opens the device store on first use so that registration at
// init time never touches the database.
func (d *dialer) openStore(ctx context.Context) (*sqlstore.Container, *slog.Logger, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	log := d.cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if d.container != nil {
		return d.container, log, nil
	}
	if d.cfg.DSN == "" {
		return nil, nil, errors.New("whatsapp: driver is not configured, call Configure first")
	}
	container, err := sqlstore.New(ctx, "pgx", d.cfg.DSN, waLog.Noop)
	if err != nil {
		return nil, nil, fmt.Errorf("whatsapp: open device store: %w", err)
	}
	d.container = container
	return container, log, nil
}

func (d *dialer) device(ctx context.Context, container *sqlstore.Container, creds transport.Credentials) (*store.Device, error) {
	if creds.Registered && creds.SelfJID != "" {
		jid, err := types.ParseJID(creds.SelfJID)
		if err != nil {
			return nil, fmt.Errorf("whatsapp: parse stored jid %q: %w", creds.SelfJID, err)
		}
		device, err := container.GetDevice(ctx, jid)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("whatsapp: load device: %w", err)
		}
		if device != nil {
			return device, nil
		}
	}
	return container.NewDevice(), nil
}

// Dial restores the device matching the credentials, or creates a fresh one
// and starts the QR pairing flow. Pairing challenges surface as connection
// updates on the handlers.
func (d *dialer) Dial(ctx context.Context, creds transport.Credentials, handlers transport.Handlers) (transport.Client, error) {
	container, log, err := d.openStore(ctx)
	if err != nil {
		return nil, err
	}
	device, err := d.device(ctx, container, creds)
	if err != nil {
		return nil, err
	}
	cli := whatsmeow.NewClient(device, waLog.Noop)
	// The session manager owns the reconnect policy.
	cli.EnableAutoReconnect = false

	c := &client{
		cli:      cli,
		handlers: handlers,
		logger:   log.With(slog.String("driver", DriverName)),
	}
	cli.AddEventHandler(c.handleEvent)

	if cli.Store.ID == nil {
		qrChan, err := cli.GetQRChannel(ctx)
		if err != nil {
			return nil, fmt.Errorf("whatsapp: qr channel: %w", err)
		}
		go c.pumpQR(qrChan)
	}
	if err := cli.Connect(); err != nil {
		return nil, fmt.Errorf("whatsapp: connect: %w", err)
	}
	return c, nil
}
