package provision

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/yourorg/botfleet/internal/domain"
)

const configFileName = "config.json"

// Provisioner implements domain.TemplateProvisioner: it clones a template
// directory into a bot instance directory and writes the account and display
// configuration into config.json inside it.
type Provisioner struct {
	templateDir string
	logger      *slog.Logger
}

// New creates a provisioner for the given template directory
func New(templateDir string, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{templateDir: templateDir, logger: logger}
}

// Provision copies the template tree to instanceDir and merges cfg into the
// instance's config.json, preserving keys the template already carries.
func (p *Provisioner) Provision(instanceDir string, cfg domain.InstanceConfig) error {
	if _, err := os.Stat(p.templateDir); err != nil {
		return fmt.Errorf("template directory %s unavailable: %w", p.templateDir, err)
	}

	if _, err := os.Stat(instanceDir); err == nil {
		return fmt.Errorf("%w: instance directory %s already exists", domain.ErrInvalidInput, instanceDir)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to inspect instance directory: %w", err)
	}
	if err := copyTree(p.templateDir, instanceDir); err != nil {
		os.RemoveAll(instanceDir)
		return fmt.Errorf("failed to copy template: %w", err)
	}

	if err := p.writeConfig(instanceDir, cfg); err != nil {
		os.RemoveAll(instanceDir)
		return fmt.Errorf("failed to write instance config: %w", err)
	}

	p.logger.Info("instance provisioned",
		slog.String("instance_dir", instanceDir),
		slog.String("account_uid", cfg.UID),
	)
	return nil
}

// Destroy removes a bot's instance directory. Removing a directory that is
// already gone is success.
func (p *Provisioner) Destroy(instanceDir string) error {
	if err := os.RemoveAll(instanceDir); err != nil {
		return fmt.Errorf("failed to remove instance directory: %w", err)
	}
	return nil
}

func (p *Provisioner) writeConfig(instanceDir string, cfg domain.InstanceConfig) error {
	path := filepath.Join(instanceDir, configFileName)

	config := map[string]any{}
	if data, err := os.ReadFile(path); err == nil {
		// Template config is a starting point; unparseable content is replaced
		_ = json.Unmarshal(data, &config)
	}

	account, _ := config["account"].(map[string]any)
	if account == nil {
		account = map[string]any{}
	}
	account["uid"] = cfg.UID
	account["password"] = cfg.Credential
	config["account"] = account

	bot, _ := config["bot"].(map[string]any)
	if bot == nil {
		bot = map[string]any{}
	}
	bot["name"] = cfg.Name
	bot["display_name"] = cfg.DisplayName
	config["bot"] = bot

	data, err := json.MarshalIndent(config, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case info.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode()&os.ModeSymlink != 0:
			linked, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(linked, target)
		default:
			return copyFile(path, target, info.Mode().Perm())
		}
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
