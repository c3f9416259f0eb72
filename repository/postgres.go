package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/serisow/craftvid/db"
	"github.com/serisow/craftvid/script_type"
)

// Postgres is a Repository backed by the tables created in db.Migrate.
type Postgres struct {
	db db.Querier
}

func NewPostgres(q db.Querier) *Postgres {
	return &Postgres{db: q}
}

func (p *Postgres) SaveScript(ctx context.Context, s *script_type.Script) error {
	if err := checkOrdinals(s); err != nil {
		return err
	}
	stored, err := p.GetScript(ctx, s.ID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return err
	default:
		// Only the scene list is checked here; the upsert below never
		// touches stored assets or the compiled video.
		next := cloneScript(s)
		if err := keepStored(next, stored); err != nil {
			return err
		}
	}

	_, err = p.db.Exec(ctx, `
		INSERT INTO scripts (id, workspace_id, title, channel_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET workspace_id = EXCLUDED.workspace_id, title = EXCLUDED.title, channel_id = EXCLUDED.channel_id`,
		s.ID, s.WorkspaceID, s.Title, s.ChannelID)
	if err != nil {
		return fmt.Errorf("failed to save script %s: %w", s.ID, err)
	}
	for _, sc := range s.Scenes {
		if err := p.saveScene(ctx, s.ID, sc); err != nil {
			return err
		}
	}
	return nil
}

// saveScene inserts a scene with its assets, or updates the text of an
// existing scene of the same script.
func (p *Postgres) saveScene(ctx context.Context, scriptID string, sc script_type.Scene) error {
	params, err := marshalNullable(sc.EffectParams)
	if err != nil {
		return err
	}
	image, err := marshalNullable(sc.Image)
	if err != nil {
		return err
	}
	voice, err := marshalNullable(sc.Voice)
	if err != nil {
		return err
	}
	preview, err := marshalNullable(sc.Preview)
	if err != nil {
		return err
	}

	tag, err := p.db.Exec(ctx, `
		INSERT INTO scenes (id, script_id, ordinal, narration, visual_prompt, caption, duration, effect, effect_params, image, voice, preview)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE
		SET narration = EXCLUDED.narration, visual_prompt = EXCLUDED.visual_prompt,
			caption = EXCLUDED.caption, duration = EXCLUDED.duration, effect = EXCLUDED.effect,
			effect_params = EXCLUDED.effect_params
		WHERE scenes.script_id = EXCLUDED.script_id`,
		sc.ID, scriptID, sc.Ordinal, sc.Narration, sc.VisualPrompt, sc.Caption, sc.Duration, sc.Effect,
		params, image, voice, preview)
	if err != nil {
		return fmt.Errorf("failed to save scene %s: %w", sc.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("scene %s belongs to another script: %w", sc.ID, ErrInvalid)
	}
	return nil
}

func (p *Postgres) GetScript(ctx context.Context, id string) (*script_type.Script, error) {
	s := &script_type.Script{ID: id}
	err := p.db.QueryRow(ctx, `SELECT workspace_id, title, channel_id FROM scripts WHERE id = $1`, id).
		Scan(&s.WorkspaceID, &s.Title, &s.ChannelID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("script %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := p.db.Query(ctx, sceneSelect+` WHERE script_id = $1 ORDER BY ordinal`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		sc, err := scanScene(rows)
		if err != nil {
			return nil, err
		}
		s.Scenes = append(s.Scenes, *sc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err = p.db.QueryRow(ctx, `SELECT data FROM compiled_videos WHERE script_id = $1`, id).Scan(&data)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return nil, err
	default:
		var cv script_type.CompiledVideo
		if err := json.Unmarshal(data, &cv); err != nil {
			return nil, fmt.Errorf("failed to decode compiled video of %s: %w", id, err)
		}
		s.CompiledVideo = &cv
	}
	return s, nil
}

const sceneSelect = `SELECT id, script_id, ordinal, narration, visual_prompt, caption, duration, effect, effect_params, image, voice, preview FROM scenes`

func scanScene(row pgx.Row) (*script_type.Scene, error) {
	var sc script_type.Scene
	var params, image, voice, preview []byte
	err := row.Scan(&sc.ID, &sc.ScriptID, &sc.Ordinal, &sc.Narration, &sc.VisualPrompt, &sc.Caption,
		&sc.Duration, &sc.Effect, &params, &image, &voice, &preview)
	if err != nil {
		return nil, err
	}
	if err := unmarshalNullable(params, &sc.EffectParams); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(image, &sc.Image); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(voice, &sc.Voice); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(preview, &sc.Preview); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (p *Postgres) GetScene(ctx context.Context, id string) (*script_type.Scene, error) {
	sc, err := scanScene(p.db.QueryRow(ctx, sceneSelect+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("scene %s: %w", id, ErrNotFound)
	}
	return sc, err
}

func (p *Postgres) SetSceneAsset(ctx context.Context, sceneID string, component script_type.Component, ref *script_type.AssetRef) error {
	var column string
	switch component {
	case script_type.ComponentImage:
		column = "image"
	case script_type.ComponentVoice:
		column = "voice"
	case script_type.ComponentVideo:
		column = "preview"
	default:
		return fmt.Errorf("unknown component %q", component)
	}
	data, err := marshalNullable(ref)
	if err != nil {
		return err
	}
	tag, err := p.db.Exec(ctx, `UPDATE scenes SET `+column+` = $2 WHERE id = $1`, sceneID, data)
	if err != nil {
		return fmt.Errorf("failed to update %s of scene %s: %w", column, sceneID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("scene %s: %w", sceneID, ErrNotFound)
	}
	return nil
}

func (p *Postgres) SetCompiledVideo(ctx context.Context, cv *script_type.CompiledVideo) error {
	data, err := json.Marshal(cv)
	if err != nil {
		return fmt.Errorf("failed to encode compiled video: %w", err)
	}
	_, err = p.db.Exec(ctx, `
		INSERT INTO compiled_videos (id, script_id, data, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (script_id) DO UPDATE
		SET id = EXCLUDED.id, data = EXCLUDED.data, created_at = EXCLUDED.created_at`,
		cv.ID, cv.ScriptID, data, cv.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save compiled video of %s: %w", cv.ScriptID, err)
	}
	return nil
}

func (p *Postgres) SaveChannel(ctx context.Context, ch *script_type.Channel) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO channels (id, name, logo_path) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, logo_path = EXCLUDED.logo_path`,
		ch.ID, ch.Name, ch.LogoPath)
	return err
}

func (p *Postgres) GetChannel(ctx context.Context, id string) (*script_type.Channel, error) {
	ch := &script_type.Channel{ID: id}
	err := p.db.QueryRow(ctx, `SELECT name, logo_path FROM channels WHERE id = $1`, id).Scan(&ch.Name, &ch.LogoPath)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("channel %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (p *Postgres) RequestCompile(ctx context.Context, scriptID string, at time.Time) error {
	tag, err := p.db.Exec(ctx, `UPDATE scripts SET compile_requested_at = $2 WHERE id = $1`, scriptID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("script %s: %w", scriptID, ErrNotFound)
	}
	return nil
}

func (p *Postgres) ClearCompileRequest(ctx context.Context, scriptID string) error {
	_, err := p.db.Exec(ctx, `UPDATE scripts SET compile_requested_at = NULL WHERE id = $1`, scriptID)
	return err
}

func (p *Postgres) PendingCompiles(ctx context.Context) ([]string, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id FROM scripts
		WHERE compile_requested_at IS NOT NULL
		ORDER BY compile_requested_at, id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func marshalNullable(v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case *script_type.AssetRef:
		if x == nil {
			return nil, nil
		}
	case map[string]interface{}:
		if x == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode column: %w", err)
	}
	return data, nil
}

func unmarshalNullable(data []byte, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode column: %w", err)
	}
	return nil
}
