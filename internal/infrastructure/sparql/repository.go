package sparql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"MailchimpPublisher/internal/domain"
	"MailchimpPublisher/internal/ports"
)

const statusBase = "http://themis.vlaanderen.be/id/concept/publication-task-status/"

const prefixes = `PREFIX ext: <http://mu.semte.ch/vocabularies/ext/>
PREFIX adms: <http://www.w3.org/ns/adms#>
PREFIX dct: <http://purl.org/dc/terms/>
PREFIX prov: <http://www.w3.org/ns/prov#>
PREFIX nie: <http://www.semanticdesktop.org/ontologies/2007/01/19/nie#>
PREFIX fabio: <http://purl.org/spar/fabio/>
PREFIX dcat: <http://www.w3.org/ns/dcat#>
PREFIX vcard: <http://www.w3.org/2006/vcard/ns#>
PREFIX org: <http://www.w3.org/ns/org#>
PREFIX ebucore: <http://www.ebu.ch/metadata/ontologies/ebucore/ebucore#>
`

// StatusURI maps a task status onto its concept URI.
func StatusURI(s domain.TaskStatus) string {
	return statusBase + string(s)
}

// StatusFromURI is the inverse of StatusURI.
func StatusFromURI(uri string) (domain.TaskStatus, bool) {
	s := domain.TaskStatus(strings.TrimPrefix(uri, statusBase))
	return s, strings.HasPrefix(uri, statusBase) && s.Valid()
}

// Querier is the subset of Client used by the repository.
type Querier interface {
	Query(ctx context.Context, query string) ([]Row, error)
	Update(ctx context.Context, update string) error
}

// Repository reads publication tasks and press releases from the triplestore.
type Repository struct {
	client      Querier
	publicGraph string
	channel     string
}

var _ ports.TaskRepository = (*Repository)(nil)

// NewRepository wires the SPARQL client. channel scopes contact details to the mailing channel.
func NewRepository(client Querier, publicGraph, channel string) *Repository {
	return &Repository{client: client, publicGraph: publicGraph, channel: channel}
}

// FetchPendingTasks returns NOT_STARTED tasks of the channel, oldest first.
func (r *Repository) FetchPendingTasks(ctx context.Context, channel string) ([]domain.PublicationTask, error) {
	query := prefixes + fmt.Sprintf(`
SELECT ?publicationTask ?graph ?pressRelease ?publicationDate WHERE {
  GRAPH ?graph {
    ?publicationTask a ext:PublicationTask ;
      adms:status %s ;
      ext:publicationChannel %s ;
      dct:created ?created .
    ?event a ebucore:PublicationEvent ;
      prov:generated ?publicationTask ;
      ebucore:publicationStartDateTime ?publicationDate .
    ?pressRelease ebucore:isScheduledOn ?event .
    FILTER NOT EXISTS { ?event ebucore:publicationEndDateTime ?endTime . }
  }
} ORDER BY ?created`, EscapeURI(StatusURI(domain.StatusNotStarted)), EscapeURI(channel))

	rows, err := r.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query pending tasks: %w", err)
	}

	tasks := make([]domain.PublicationTask, 0, len(rows))
	for _, row := range rows {
		published, _ := parseDateTime(row.Get("publicationDate"))
		tasks = append(tasks, domain.PublicationTask{
			ID:              row.Get("publicationTask"),
			Graph:           row.Get("graph"),
			PressRelease:    row.Get("pressRelease"),
			Status:          domain.StatusNotStarted,
			PublicationDate: published,
		})
	}
	return tasks, nil
}

// PersistStatus replaces status and modified date in a single request, so the task is
// never observable without a status.
func (r *Repository) PersistStatus(ctx context.Context, task domain.PublicationTask, status domain.TaskStatus, at time.Time) error {
	graph := EscapeURI(task.Graph)
	subject := EscapeURI(task.ID)

	update := prefixes + fmt.Sprintf(`
DELETE {
  GRAPH %[1]s {
    %[2]s adms:status ?status ;
      dct:modified ?modified .
  }
}
INSERT {
  GRAPH %[1]s {
    %[2]s adms:status %[3]s ;
      dct:modified %[4]s .
  }
}
WHERE {
  GRAPH %[1]s {
    %[2]s a ext:PublicationTask .
    OPTIONAL { %[2]s adms:status ?status . }
    OPTIONAL { %[2]s dct:modified ?modified . }
  }
}`, graph, subject, EscapeURI(StatusURI(status)), EscapeDateTime(at))

	if err := r.client.Update(ctx, update); err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return nil
}

// FetchPressRelease loads content, themes and sources of the task's press release.
func (r *Repository) FetchPressRelease(ctx context.Context, task domain.PublicationTask) (domain.PressRelease, error) {
	graph := EscapeURI(task.Graph)
	subject := EscapeURI(task.PressRelease)

	query := prefixes + fmt.Sprintf(`
SELECT ?title ?htmlContent ?startDate ?creatorName WHERE {
  GRAPH %[1]s {
    %[2]s a fabio:PressRelease ;
      nie:title ?title ;
      nie:htmlContent ?htmlContent ;
      ebucore:isScheduledOn ?publicationEvent .
    ?publicationEvent a ebucore:PublicationEvent ;
      ebucore:publicationStartDateTime ?startDate .
    OPTIONAL {
      %[2]s dct:creator ?creator .
      ?creator vcard:fn ?creatorName .
    }
  }
} LIMIT 1`, graph, subject)

	rows, err := r.client.Query(ctx, query)
	if err != nil {
		return domain.PressRelease{}, fmt.Errorf("query press release: %w", err)
	}
	if len(rows) == 0 {
		return domain.PressRelease{}, fmt.Errorf("press release %s: %w", task.PressRelease, domain.ErrNotFound)
	}

	row := rows[0]
	published, _ := parseDateTime(row.Get("startDate"))
	pr := domain.PressRelease{
		ID:              task.PressRelease,
		Title:           row.Get("title"),
		HTMLBody:        row.Get("htmlContent"),
		PublicationDate: published,
		CreatorName:     row.Get("creatorName"),
	}

	if pr.Themes, err = r.fetchThemes(ctx, graph, subject); err != nil {
		return domain.PressRelease{}, err
	}
	if pr.Sources, err = r.fetchSources(ctx, graph, subject); err != nil {
		return domain.PressRelease{}, err
	}
	return pr, nil
}

func (r *Repository) fetchThemes(ctx context.Context, graph, subject string) ([]string, error) {
	query := prefixes + fmt.Sprintf(`
SELECT DISTINCT ?label WHERE {
  GRAPH %s {
    %s a fabio:PressRelease ;
      dcat:theme ?theme .
  }
  GRAPH %s {
    ?theme ext:mailchimpId ?label .
  }
}`, graph, subject, EscapeURI(r.publicGraph))

	rows, err := r.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query themes: %w", err)
	}
	themes := make([]string, 0, len(rows))
	for _, row := range rows {
		themes = append(themes, row.Get("label"))
	}
	return themes, nil
}

func (r *Repository) fetchSources(ctx context.Context, graph, subject string) ([]domain.Source, error) {
	channel := EscapeURI(r.channel)
	query := prefixes + fmt.Sprintf(`
SELECT ?source ?fullName ?function ?telephone ?mobile ?email ?organization WHERE {
  GRAPH %[1]s {
    %[2]s a fabio:PressRelease ;
      dct:source ?source .
    ?source a ebucore:Contact ;
      vcard:fn ?fullName .
    OPTIONAL { ?source vcard:role ?function }
    OPTIONAL {
      ?source vcard:hasTelephone ?telephoneURI .
      ?telephoneURI a vcard:Voice ;
        vcard:hasValue ?telephone ;
        ext:publicationChannel %[3]s .
    }
    OPTIONAL {
      ?source ext:hasMobile ?mobileURI .
      ?mobileURI a vcard:Cell ;
        vcard:hasValue ?mobile ;
        ext:publicationChannel %[3]s .
    }
    OPTIONAL {
      ?source vcard:hasEmail ?emailURI .
      ?emailURI a vcard:Email ;
        vcard:hasValue ?email ;
        ext:publicationChannel %[3]s .
    }
  }
  OPTIONAL {
    GRAPH %[4]s {
      ?organizationURI a vcard:Organization ;
        vcard:fn ?organization .
    }
    GRAPH %[1]s {
      ?organizationURI org:hasMember ?source .
    }
  }
} ORDER BY ?fullName`, graph, subject, channel, EscapeURI(r.publicGraph))

	rows, err := r.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	sources := make([]domain.Source, 0, len(rows))
	for _, row := range rows {
		sources = append(sources, domain.Source{
			FullName:     row.Get("fullName"),
			Function:     row.Get("function"),
			Telephone:    row.Get("telephone"),
			Mobile:       row.Get("mobile"),
			Email:        row.Get("email"),
			Organization: row.Get("organization"),
		})
	}
	return sources, nil
}

// PersistRenderedContent stores the mail body on the task as nie:htmlContent.
func (r *Repository) PersistRenderedContent(ctx context.Context, task domain.PublicationTask, html string) error {
	graph := EscapeURI(task.Graph)
	subject := EscapeURI(task.ID)

	update := prefixes + fmt.Sprintf(`
DELETE {
  GRAPH %[1]s { %[2]s nie:htmlContent ?html . }
}
INSERT {
  GRAPH %[1]s { %[2]s nie:htmlContent %[3]s . }
}
WHERE {
  GRAPH %[1]s {
    %[2]s a ext:PublicationTask .
    OPTIONAL { %[2]s nie:htmlContent ?html . }
  }
}`, graph, subject, EscapeString(html))

	if err := r.client.Update(ctx, update); err != nil {
		return fmt.Errorf("store rendered content: %w", err)
	}
	return nil
}

func parseDateTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05", v)
}
