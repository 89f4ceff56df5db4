package correlate

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"task-inbox-go/internal/db"
	"task-inbox-go/internal/model"
	"task-inbox-go/internal/normalize"
	"task-inbox-go/internal/repository"
)

// ErrNoSender is returned when the address carries no email.
var ErrNoSender = errors.New("sender address is empty")

const maxUsernameAttempts = 50

var usernameUnsafe = regexp.MustCompile(`[^a-z0-9._-]+`)

// Identity is the resolved user behind a sender address.
type Identity struct {
	UserID  uint
	Email   string
	Created bool
}

// Provisioner finds users by email and creates them on first contact.
type Provisioner struct {
	repo *repository.Repository
}

func NewProvisioner(repo *repository.Repository) *Provisioner {
	return &Provisioner{repo: repo}
}

// FindOrProvision returns the user for addr, creating one with an unusable
// random password when needed, and grants viewer membership on the
// project's organization, workspace and project.
func (p *Provisioner) FindOrProvision(ctx context.Context, addr normalize.Address, projectID uint) (Identity, error) {
	email := strings.ToLower(strings.TrimSpace(addr.Email))
	if email == "" {
		return Identity{}, ErrNoSender
	}

	user, err := p.repo.FindUserByEmail(ctx, email)
	if err != nil {
		return Identity{}, err
	}
	id := Identity{Email: email}
	if user == nil {
		user, id.Created, err = p.create(ctx, email, addr.Name)
		if err != nil {
			return Identity{}, err
		}
	}
	id.UserID = user.ID

	h, err := p.repo.ProjectHierarchy(ctx, projectID)
	if errors.Is(err, repository.ErrProjectNotFound) {
		logrus.WithField("project_id", projectID).Warn("Project hierarchy missing, skipping memberships")
		return id, nil
	}
	if err != nil {
		return Identity{}, err
	}

	err = p.repo.Transaction(ctx, func(tx *repository.Repository) error {
		return tx.UpsertMemberships(ctx, user.ID, h, model.RoleViewer)
	})
	if err != nil {
		return Identity{}, err
	}
	return id, nil
}

func (p *Provisioner) create(ctx context.Context, email, name string) (*model.User, bool, error) {
	hash, err := randomPasswordHash()
	if err != nil {
		return nil, false, err
	}

	base := usernameBase(email)
	for attempt := 0; attempt < maxUsernameAttempts; attempt++ {
		username := base
		if attempt > 0 {
			username = base + strconv.Itoa(attempt)
		}
		taken, err := p.repo.UsernameTaken(ctx, username)
		if err != nil {
			return nil, false, err
		}
		if taken {
			continue
		}

		user := &model.User{
			Email:        email,
			Username:     username,
			Name:         name,
			PasswordHash: hash,
			CreatedVia:   model.CreatedViaEmailIngestion,
		}
		err = p.repo.CreateUser(ctx, user)
		if err == nil {
			logrus.WithFields(logrus.Fields{"user_id": user.ID, "email": email}).Info("Provisioned user from inbound email")
			return user, true, nil
		}
		if !db.IsDuplicate(err) {
			return nil, false, fmt.Errorf("failed to create user: %w", err)
		}
		// another ingestion may have created the same sender meanwhile
		if existing, ferr := p.repo.FindUserByEmail(ctx, email); ferr == nil && existing != nil {
			return existing, false, nil
		}
	}

	user := &model.User{
		Email:        email,
		Username:     base + "-" + uuid.NewString()[:8],
		Name:         name,
		PasswordHash: hash,
		CreatedVia:   model.CreatedViaEmailIngestion,
	}
	if err := p.repo.CreateUser(ctx, user); err != nil {
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}
	return user, true, nil
}

func usernameBase(email string) string {
	base := usernameUnsafe.ReplaceAllString(strings.ToLower(normalize.LocalPart(email)), "")
	base = strings.Trim(base, "._-")
	if base == "" {
		return "user"
	}
	return base
}

func randomPasswordHash() (string, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(secret)), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
