// Package archive indexes copies of sent customer emails into Elasticsearch so
// support staff can search them.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"comm-dispatch/internal/models"
)

type emailDocument struct {
	EmailID  int64     `json:"emailId"`
	UserID   int64     `json:"userId"`
	Email    string    `json:"email"`
	Subject  string    `json:"subject"`
	BodyText string    `json:"bodyText"`
	HasHTML  bool      `json:"hasHtml"`
	DateSent time.Time `json:"dateSent"`
}

// EmailIndexer writes sent emails into one index.
type EmailIndexer struct {
	client *elasticsearch.Client
	index  string
}

func NewEmailIndexer(client *elasticsearch.Client, index string) *EmailIndexer {
	return &EmailIndexer{client: client, index: index}
}

// DocumentID is the stable document id for a stored email.
func DocumentID(emailID int64) string {
	return fmt.Sprintf("email-%d", emailID)
}

func (i *EmailIndexer) IndexEmail(ctx context.Context, email *models.Email) error {
	doc := emailDocument{
		EmailID:  email.ID,
		UserID:   email.UserID,
		Email:    email.Email,
		Subject:  email.Subject,
		BodyText: email.BodyText,
		HasHTML:  email.BodyHTML != "",
		DateSent: email.DateSent,
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal email document: %w", err)
	}

	res, err := i.client.Index(
		i.index,
		bytes.NewReader(body),
		i.client.Index.WithDocumentID(DocumentID(email.ID)),
		i.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("index email %d: %w", email.ID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("index email %d: %s: %s", email.ID, res.Status(), strings.TrimSpace(string(msg)))
	}
	return nil
}
