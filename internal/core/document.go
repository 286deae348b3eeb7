package core

import "fmt"

// Document is one record of a store collection, keyed by field name.
type Document map[string]any

// Document field names.
const (
	KeyExpenseName = "expenseName"
	KeyAmount      = "amount"
	KeyDate        = "date"
	KeyCreatedAt   = "createdAt"
	KeyAddedBy     = "addedBy"
	KeyName        = "name"
)

// Document returns the stored form of the expense. The id is the record key
// and is not part of the body.
func (e Expense) Document() Document {
	return Document{
		KeyExpenseName: e.ExpenseName,
		KeyAmount:      e.Amount.Value(),
		KeyDate:        e.Date,
		KeyCreatedAt:   e.CreatedAt,
		KeyAddedBy:     e.AddedBy,
	}
}

// Document returns the partial update for an edited expense.
func (p ExpensePatch) Document() Document {
	return Document{
		KeyExpenseName: p.ExpenseName,
		KeyDate:        p.Date,
		KeyAmount:      p.Amount.Value(),
	}
}

func (t Template) Document() Document {
	return Document{KeyName: t.Name, KeyCreatedAt: t.CreatedAt}
}

// ExpenseFromDocument decodes a stored record. Missing or mistyped fields
// decode to their zero value.
func ExpenseFromDocument(id string, doc Document) Expense {
	return Expense{
		ID:          id,
		ExpenseName: docString(doc, KeyExpenseName),
		Amount:      AmountFromValue(doc[KeyAmount]),
		Date:        docString(doc, KeyDate),
		CreatedAt:   parseMillis(doc[KeyCreatedAt]),
		AddedBy:     docString(doc, KeyAddedBy),
	}
}

func TemplateFromDocument(id string, doc Document) Template {
	return Template{
		ID:        id,
		Name:      docString(doc, KeyName),
		CreatedAt: parseMillis(doc[KeyCreatedAt]),
	}
}

// Clone returns a shallow copy.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

func docString(doc Document, key string) string {
	switch v := doc[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
