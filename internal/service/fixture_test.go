package service

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/bounty-escrow/internal/authz"
	"github.com/ignatzorin/bounty-escrow/internal/domain/entity"
	"github.com/ignatzorin/bounty-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/bounty-escrow/internal/ledger"
	"github.com/ignatzorin/bounty-escrow/internal/signer"
)

const day = 24 * time.Hour

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	clock *testClock
	sys   *System

	admin       common.Address
	treasury    common.Address
	client      common.Address
	freelancer  common.Address
	other       common.Address
	moderator   common.Address
	arbitrator  common.Address
	arbitrator2 common.Address

	updaterKey *ecdsa.PrivateKey
	updater    common.Address
}

func addr(hex string) common.Address {
	return common.HexToAddress(hex)
}

// newFixture поднимает систему с комиссией 10% и порогом обжалования 10 единиц.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	f := &fixture{
		t:           t,
		ctx:         context.Background(),
		clock:       &testClock{now: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)},
		admin:       addr("0xa0"),
		treasury:    addr("0xa1"),
		client:      addr("0xc1"),
		freelancer:  addr("0xf1"),
		other:       addr("0xf2"),
		moderator:   addr("0xd1"),
		arbitrator:  addr("0xb1"),
		arbitrator2: addr("0xb2"),
		updaterKey:  key,
		updater:     crypto.PubkeyToAddress(key.PublicKey),
	}
	f.sys = NewSystem(ledger.New(f.clock))

	require.NoError(t, f.sys.Bootstrap(f.ctx, Genesis{
		Admin:           f.admin,
		Treasury:        f.treasury,
		FeeBps:          1000,
		AppealThreshold: valueobject.Ether(10),
		Updaters:        []common.Address{f.updater},
		Grants: map[authz.Role][]common.Address{
			authz.RoleModerator:  {f.moderator},
			authz.RoleArbitrator: {f.arbitrator, f.arbitrator2},
		},
	}))
	return f
}

func (f *fixture) sign(user common.Address, q, r, p uint16) []byte {
	f.t.Helper()
	sig, err := signer.Sign(f.updaterKey, signer.Update{User: user, Quality: q, Reliability: r, Professionalism: p}, f.clock.Now())
	require.NoError(f.t, err)
	return sig
}

// setScore выставляет адресу равные компоненты, так что общий балл равен score.
func (f *fixture) setScore(user common.Address, score uint16) {
	f.t.Helper()
	_, err := f.sys.Oracle.UpdateReputation(f.ctx, f.updater, ReputationUpdate{
		User: user, Quality: score, Reliability: score, Professionalism: score,
		Signature: f.sign(user, score, score, score),
	})
	require.NoError(f.t, err)
}

func (f *fixture) terms(value *big.Int) entity.BountyTerms {
	return entity.BountyTerms{
		Value:            value,
		RequirementsHash: "0x7e9a",
		Deadline:         f.clock.Now().Add(30 * day),
		MaxRevisions:     2,
	}
}

func (f *fixture) createBounty(value *big.Int) *entity.Bounty {
	f.t.Helper()
	b, err := f.sys.Registry.CreateBounty(f.ctx, f.client, f.terms(value))
	require.NoError(f.t, err)
	return b
}

// claimedBounty создаёт задачу и отдаёт её исполнителю.
func (f *fixture) claimedBounty(value *big.Int) *entity.Bounty {
	f.t.Helper()
	b := f.createBounty(value)
	b, err := f.sys.Registry.ClaimBounty(f.ctx, f.freelancer, b.ID)
	require.NoError(f.t, err)
	return b
}

// reviewedSubmission доводит задачу до работы на проверке.
func (f *fixture) reviewedSubmission(value *big.Int) (*entity.Bounty, *entity.Submission) {
	f.t.Helper()
	b := f.claimedBounty(value)
	sub, err := f.sys.Submissions.SubmitWork(f.ctx, f.freelancer, b.ID, "0x3c01")
	require.NoError(f.t, err)
	sub, err = f.sys.Submissions.StartReview(f.ctx, f.client, sub.ID)
	require.NoError(f.t, err)
	return b, sub
}

func (f *fixture) bounty(id uint64) *entity.Bounty {
	f.t.Helper()
	b, err := f.sys.Registry.GetBounty(f.ctx, id)
	require.NoError(f.t, err)
	return b
}

func (f *fixture) account(a common.Address) *entity.EscrowAccount {
	f.t.Helper()
	acc, err := f.sys.Escrow.GetAccount(f.ctx, a)
	require.NoError(f.t, err)
	return acc
}

func (f *fixture) reputation(a common.Address) *entity.ReputationScore {
	f.t.Helper()
	rep, err := f.sys.Oracle.GetReputation(f.ctx, a)
	require.NoError(f.t, err)
	return rep
}

func (f *fixture) requireBalanced() {
	f.t.Helper()
	report := f.sys.Audit()
	require.True(f.t, report.Balanced, "audit: %+v", report)
}

// milli это сумма в тысячных долях единицы.
func milli(n int64) *big.Int {
	return new(big.Int).Div(valueobject.Ether(n), big.NewInt(1000))
}
