package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"reachloop/config"
	"reachloop/models"
	"reachloop/outreach"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"gorm.io/gorm"
)

// ReplyWorker polls the shared outreach inbox and matches incoming mail
// against sent executions via In-Reply-To / References headers. A match
// moves the execution to replied, which the condition evaluator then
// sees on the next step.
type ReplyWorker struct {
	DB      *gorm.DB
	Tracker *outreach.Tracker
	Logger  *log.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewReplyWorker(db *gorm.DB, tracker *outreach.Tracker) *ReplyWorker {
	return &ReplyWorker{
		DB:      db,
		Tracker: tracker,
		Logger:  log.New(os.Stdout, "REPLY: ", log.Ldate|log.Ltime|log.Lshortfile),
	}
}

func (w *ReplyWorker) Start() {
	if config.AppConfig.IMAP.Host == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		w.Logger.Println("started")

		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				w.Logger.Println("stopped")
				return
			case <-ticker.C:
				if err := w.pollInbox(); err != nil {
					w.Logger.Printf("inbox poll failed: %v", err)
				}
			}
		}
	}()
}

func (w *ReplyWorker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
}

func (w *ReplyWorker) pollInbox() error {
	cfg := config.AppConfig.IMAP

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	var c *client.Client
	var err error
	if cfg.Encryption == "NONE" {
		c, err = client.Dial(addr)
	} else {
		c, err = client.DialTLS(addr, nil)
	}
	if err != nil {
		return fmt.Errorf("imap dial failed: %w", err)
	}
	defer c.Logout()

	if err := c.Login(cfg.Username, cfg.Password); err != nil {
		return fmt.Errorf("imap login failed: %w", err)
	}
	if _, err := c.Select(cfg.Mailbox, false); err != nil {
		return fmt.Errorf("imap select failed: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := c.Search(criteria)
	if err != nil {
		return fmt.Errorf("imap search failed: %w", err)
	}
	if len(uids) == 0 {
		return nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	messages := make(chan *imap.Message, len(uids))
	fetchErr := make(chan error, 1)
	go func() {
		fetchErr <- c.Fetch(seqSet, []imap.FetchItem{section.FetchItem()}, messages)
	}()

	matched := 0
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		reader, err := mail.CreateReader(body)
		if err != nil {
			continue
		}
		if w.matchReply(reader) {
			matched++
		}
	}
	if err := <-fetchErr; err != nil {
		return fmt.Errorf("imap fetch failed: %w", err)
	}
	if matched > 0 {
		w.Logger.Printf("recorded %d replies", matched)
	}
	return nil
}

// matchReply resolves the referenced outbound message id and records the
// reply through the tracker.
func (w *ReplyWorker) matchReply(reader *mail.Reader) bool {
	header := reader.Header
	refs := header.Get("In-Reply-To") + " " + header.Get("References")

	for _, ref := range strings.Fields(refs) {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		var execution models.Execution
		err := w.DB.Where("provider_message_id = ? AND channel = ?",
			ref, string(outreach.ChannelEmail)).First(&execution).Error
		if err != nil {
			continue
		}
		return w.Tracker.UpdateByExecutionID(execution.ID, models.ExecutionReplied, "")
	}
	return false
}
