package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/grovetools/modelcore/internal/collector"
	"github.com/grovetools/modelcore/internal/remote"
	"github.com/grovetools/modelcore/logging"
	"github.com/grovetools/modelcore/pkg/model"
)

// printer is the controller of the plain watch mode. It prints every notification
// of the list and the job and acknowledges removals once printed.
type printer struct {
	*model.Basic
	box    *model.Mailbox
	list   *model.ListModel
	pretty *logging.PrettyLogger
	out    io.Writer
	json   bool
}

func newPrinter(list *model.ListModel, out io.Writer, jsonOutput bool) *printer {
	box := model.NewMailbox("printer")
	return &printer{
		Basic:  model.NewController("printer", box),
		box:    box,
		list:   list,
		pretty: logging.NewPrettyLogger().WithWriter(out),
		out:    out,
		json:   jsonOutput,
	}
}

// run prints notifications until the job reports it is done or ctx ends.
func (p *printer) run(ctx context.Context) (model.JobResult, error) {
	for {
		msg, err := p.box.Receive(ctx)
		if err != nil {
			return model.JobResult{}, err
		}
		p.print(msg)

		switch msg.Kind {
		case model.KindItemRemoved:
			p.list.RemovalAcknowledged(p)
		case model.KindJobDone:
			res, _ := msg.Payload.(model.JobResult)
			return res, nil
		}
	}
}

func (p *printer) print(msg model.Message) {
	if p.json {
		data, err := json.Marshal(remote.EventOf(msg))
		if err == nil {
			fmt.Fprintln(p.out, string(data))
		}
		return
	}

	switch payload := msg.Payload.(type) {
	case model.ItemEvent:
		fields := []interface{}{"key", payload.Key, "v", msg.Version}
		if payload.ParentKey != "" {
			fields = append(fields, "parent", payload.ParentKey)
		}
		if msg.Kind != model.KindItemRemoved && payload.Item != nil {
			if entry, ok := payload.Item.Value().(collector.Entry); ok {
				fields = append(fields, "size", entry.Size)
				if entry.IsDir {
					fields = append(fields, "dir", true)
				}
			}
		}
		p.pretty.Event(msg.Model, string(msg.Kind), fields...)
	case model.JobResult:
		if payload.Completed {
			p.pretty.Success(fmt.Sprintf("%s completed", msg.Model))
		} else {
			p.pretty.WarnPretty(fmt.Sprintf("%s stopped", msg.Model))
		}
	}
}

// close detaches the printer from every model, then stops its mailbox.
func (p *printer) close() {
	p.DetachAll()
	p.box.Close()
}
