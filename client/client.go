// Package client is a GroupGrade API client keeping rosters, groups and the user profile in
// synchronization caches.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/tymastrangelo/groupgrade-sub000/core"
	"github.com/tymastrangelo/groupgrade-sub000/core/class"
	"github.com/tymastrangelo/groupgrade-sub000/core/grouping"
	"github.com/tymastrangelo/groupgrade-sub000/core/synccache"
	"github.com/tymastrangelo/groupgrade-sub000/core/user"
	"github.com/tymastrangelo/groupgrade-sub000/services/resource"
)

// Cache key kinds.
const (
	kindRoster  = "roster"
	kindGroups  = "groups"
	keyProfile  = "me"
	defaultTTL  = 30 * time.Second
	contentType = "application/json"
)

func rosterKey(classID string) string { return kindRoster + ":" + classID }
func groupsKey(classID string) string { return kindGroups + ":" + classID }

// apiPath maps cache keys to API paths.
func apiPath(key string) (string, error) {
	if key == keyProfile {
		return "/users/me", nil
	}
	kind, id, _ := strings.Cut(key, ":")
	if id == "" {
		return "", errors.Errorf("unknown key %q", key)
	}
	switch kind {
	case kindRoster:
		return "/classes/" + url.PathEscape(id) + "/roster", nil
	case kindGroups:
		return "/classes/" + url.PathEscape(id) + "/groups", nil
	}
	return "", errors.Errorf("unknown key %q", key)
}

type (
	Client struct {
		fetcher *resource.HTTPFetcher
		ttl     time.Duration

		rosters *synccache.Cache[[]grouping.Member]
		groups  *synccache.Cache[[]grouping.Result]
		profile *synccache.Cache[user.User]
	}

	config struct {
		httpClient *http.Client
		ttl        time.Duration
		logger     core.Logger
		metrics    func(cache string) synccache.Metrics
	}

	Option func(*config)
)

func WithHTTPClient(c *http.Client) Option { return func(conf *config) { conf.httpClient = c } }

// WithTTL sets how long data is served without revalidation.
func WithTTL(ttl time.Duration) Option { return func(conf *config) { conf.ttl = ttl } }

func WithLogger(l core.Logger) Option { return func(conf *config) { conf.logger = l } }

// WithMetrics sets the metrics source of each cache, eg. (*metricsvc.CacheMetrics).For.
func WithMetrics(m func(cache string) synccache.Metrics) Option {
	return func(conf *config) { conf.metrics = m }
}

// New returns a Client of the API at baseURL (eg. http://localhost:8000/v1).
// token is called on every request for the bearer token.
func New(baseURL string, token func() string, opts ...Option) (*Client, error) {
	conf := config{ttl: defaultTTL, logger: core.NewNopLogger()}
	for _, opt := range opts {
		opt(&conf)
	}
	if err := vala.BeginValidation().Validate(
		vala.StringNotEmpty(baseURL, "baseURL"),
	).Check(); err != nil {
		return nil, err
	}
	if conf.ttl <= 0 {
		conf.ttl = defaultTTL
	}

	fetcherOpts := []resource.Option{resource.WithPath(apiPath), resource.WithBearer(token)}
	if conf.httpClient != nil {
		fetcherOpts = append(fetcherOpts, resource.WithHTTPClient(conf.httpClient))
	}
	fetcher, err := resource.NewHTTPFetcher(baseURL, fetcherOpts...)
	if err != nil {
		return nil, err
	}

	c := &Client{fetcher: fetcher, ttl: conf.ttl}
	if c.rosters, err = newCache[[]grouping.Member](fetcher, conf, "client.roster", kindRoster); err != nil {
		return nil, err
	}
	if c.groups, err = newCache[[]grouping.Result](fetcher, conf, "client.groups", kindGroups); err != nil {
		return nil, err
	}
	if c.profile, err = newCache[user.User](fetcher, conf, "client.profile", ""); err != nil {
		return nil, err
	}
	return c, nil
}

func newCache[T any](fetcher synccache.Fetcher, conf config, name, field string) (*synccache.Cache[T], error) {
	opts := []synccache.Option[T]{
		synccache.WithDecoder(synccache.Unwrap[T](field)),
		synccache.WithLogger[T](conf.logger),
		synccache.WithDefaultTTL[T](conf.ttl),
	}
	if conf.metrics != nil {
		opts = append(opts, synccache.WithMetrics[T](conf.metrics(name)))
	}
	return synccache.New[T](fetcher, opts...)
}

// Roster returns the members of a class (class owners only). On a failed refresh the last
// known roster is returned along with the error.
func (c *Client) Roster(ctx context.Context, classID string) ([]grouping.Member, error) {
	roster, _, err := c.rosters.Read(ctx, rosterKey(classID), c.ttl)
	return roster, err
}

// Groups returns the latest groups of a class.
func (c *Client) Groups(ctx context.Context, classID string) ([]grouping.Result, error) {
	groups, _, err := c.groups.Read(ctx, groupsKey(classID), c.ttl)
	return groups, err
}

// Profile returns the authenticated user.
func (c *Client) Profile(ctx context.Context) (user.User, error) {
	usr, _, err := c.profile.Read(ctx, keyProfile, c.ttl)
	return usr, err
}

// FormGroups forms the groups of a class and stores the result as the latest groups, tagged
// with the ETag of the response.
func (c *Client) FormGroups(ctx context.Context, classID string, fg class.FormGroups) ([]grouping.Result, error) {
	if err := vala.BeginValidation().Validate(
		vala.StringNotEmpty(classID, "classID"),
	).Check(); err != nil {
		return nil, err
	}
	var res struct {
		Groups []grouping.Result `json:"groups"`
	}
	etag, err := c.do(ctx, http.MethodPost, "/classes/"+url.PathEscape(classID)+"/groups", fg, &res)
	if err != nil {
		return nil, err
	}
	if res.Groups == nil {
		res.Groups = []grouping.Result{}
	}
	c.groups.Write(groupsKey(classID), res.Groups, synccache.Token(etag))
	return res.Groups, nil
}

// UpdateSkills submits the skills survey of the authenticated student and applies it to the
// cached profile.
func (c *Client) UpdateSkills(ctx context.Context, skills grouping.SkillProfile) (user.User, error) {
	survey := user.SkillSurvey{
		Research:  &skills.Research,
		Writing:   &skills.Writing,
		Design:    &skills.Design,
		Technical: &skills.Technical,
	}
	var updated user.User
	if _, err := c.do(ctx, http.MethodPut, "/users/me/skills", survey, &updated); err != nil {
		return user.User{}, err
	}
	c.profile.Mutate(keyProfile, func(current user.User, ok bool) user.User {
		if !ok {
			return updated
		}
		current.Skills = updated.Skills
		current.UpdatedAt = updated.UpdatedAt
		return current
	})
	return updated, nil
}

// SubscribeGroups calls observer with the groups of a class now, if known, and on every change.
func (c *Client) SubscribeGroups(classID string, observer func([]grouping.Result)) (unsubscribe func()) {
	return c.groups.Subscribe(groupsKey(classID), observer)
}

// SubscribeProfile calls observer with the authenticated user now, if known, and on every change.
func (c *Client) SubscribeProfile(observer func(user.User)) (unsubscribe func()) {
	return c.profile.Subscribe(keyProfile, observer)
}

// Invalidate refreshes the roster & groups of a class in the background.
func (c *Client) Invalidate(classID string) {
	c.rosters.Invalidate(rosterKey(classID))
	c.groups.Invalidate(groupsKey(classID))
}

// Dashboard is the class overview shown to its professor.
type Dashboard struct {
	Roster []grouping.Member
	Groups []grouping.Result // nil until groups are formed
}

// Dashboard reads the roster & groups of a class concurrently.
func (c *Client) Dashboard(ctx context.Context, classID string) (Dashboard, error) {
	var d Dashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		roster, err := c.Roster(gctx, classID)
		d.Roster = roster
		return err
	})
	g.Go(func() error {
		groups, err := c.Groups(gctx, classID)
		if IsNotFound(err) {
			return nil
		}
		d.Groups = groups
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

// IsNotFound reports whether err is a 404 API response.
func IsNotFound(err error) bool {
	var sErr *resource.StatusError
	return errors.As(err, &sErr) && sErr.Code == http.StatusNotFound
}

// do sends in as JSON and decodes the response into out; it returns the response ETag.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) (string, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return "", errors.Wrap(err, "encoding request")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.fetcher.URL(path), bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "creating request")
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", contentType)
	c.fetcher.Authorize(req)

	res, err := c.fetcher.Client().Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "%s %s", method, req.URL)
	}
	defer res.Body.Close()
	if err = resource.CheckStatus(res); err != nil {
		return "", err
	}
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return "", errors.Wrapf(err, "reading %s", req.URL)
	}
	if err = json.Unmarshal(data, out); err != nil {
		return "", errors.Wrap(err, "decoding response")
	}
	return res.Header.Get("ETag"), nil
}
