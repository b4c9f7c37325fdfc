package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// VoteDirection — направление голоса.
type VoteDirection string

const (
	VoteUp   VoteDirection = "up"
	VoteDown VoteDirection = "down"
)

// Бюджеты голосов на один конкурс для держателя одного PoI-кредешнла.
const (
	UpVoteBudget   = 5
	DownVoteBudget = 2
)

// VoterCredential — невозобновляемый кредешнл голосующего (один на
// аккаунт на конкурс, uniqueness обеспечивается ключом в БД).
type VoterCredential struct {
	ID        int       `json:"id" db:"id"`
	ContestID int       `json:"contest_id" db:"contest_id"`
	VoterID   int       `json:"voter_id" db:"voter_id"`
	MintedAt  time.Time `json:"minted_at" db:"minted_at"`
}

// VoteCommit — одна запись commit/reveal голосования.
//
// Направление объявляется при коммите: без него невозможно атомарно
// проверять бюджеты up/down до окна раскрытия. Обоснование и nonce
// остаются скрытыми за commitment-хэшом до reveal. При раскрытии хэш
// пересчитывается по объявленному направлению, так что подменить его
// после коммита нельзя.
type VoteCommit struct {
	ID             int           `json:"id" db:"id"`
	ContestID      int           `json:"contest_id" db:"contest_id"`
	EntryID        int           `json:"entry_id" db:"entry_id"`
	VoterID        int           `json:"voter_id" db:"voter_id"`
	Direction      VoteDirection `json:"direction" db:"direction"`
	CommitmentHash string        `json:"commitment_hash" db:"commitment_hash"`
	CommittedAt    time.Time     `json:"committed_at" db:"committed_at"`
	Revealed       bool          `json:"revealed" db:"revealed"`
	Justification  *string       `json:"justification,omitempty" db:"justification"`
	RevealedAt     *time.Time    `json:"revealed_at,omitempty" db:"revealed_at"`
}

// CommitmentHash вычисляет канонический хэш обязательства.
// Формат фиксирован протоколом: sha256("direction|justification|nonce").
func CommitmentHash(direction VoteDirection, justification, nonce string) string {
	h := sha256.Sum256([]byte(string(direction) + "|" + justification + "|" + nonce))
	return hex.EncodeToString(h[:])
}

// VoterPseudonym возвращает стабильный псевдоним голосующего для audit
// pack: хэш привязан к конкурсу, поэтому между конкурсами псевдонимы
// не связываются.
func VoterPseudonym(contestID, voterID int) string {
	h := sha256.Sum256([]byte("voter|" + strconv.Itoa(contestID) + "|" + strconv.Itoa(voterID)))
	return hex.EncodeToString(h[:16])
}
