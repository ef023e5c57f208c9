package class

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/tymastrangelo/groupgrade-sub000/core"
	"github.com/tymastrangelo/groupgrade-sub000/core/grouping"
	"github.com/tymastrangelo/groupgrade-sub000/core/synccache"
	"github.com/tymastrangelo/groupgrade-sub000/core/user"
)

const memberKeyPrefix = "member:"

// MemberCache holds the roster view of users, keyed by MemberKey.
type MemberCache = synccache.Cache[grouping.Member]

func MemberKey(userID string) string { return memberKeyPrefix + userID }

// NewMemberCache returns a cache of roster members backed by the user service.
// Entries are versioned with the ETag of their JSON encoding, so a re-read of an unchanged
// user only refreshes the entry timestamp.
func NewMemberCache(usrSvc user.Service, opts ...synccache.Option[grouping.Member]) (*MemberCache, error) {
	return synccache.New[grouping.Member](memberFetcher(usrSvc), opts...)
}

func memberFetcher(usrSvc user.Service) synccache.Fetcher {
	return synccache.FetcherFunc(func(ctx context.Context, key string, token synccache.Token) (synccache.Response, error) {
		id := strings.TrimPrefix(key, memberKeyPrefix)
		usr, err := usrSvc.GetByID(ctx, id)
		if err != nil {
			return synccache.Response{}, errors.Wrapf(err, "finding member %s", id)
		}
		body, tag, err := encodeMember(usr.Member())
		if err != nil {
			return synccache.Response{}, err
		}
		if token != "" && tag == token {
			return synccache.Response{NotModified: true}, nil
		}
		return synccache.Response{Body: body, Token: tag}, nil
	})
}

func encodeMember(m grouping.Member) ([]byte, synccache.Token, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, "", errors.Wrap(err, "encoding member")
	}
	return body, synccache.Token(core.ETag(body)), nil
}
