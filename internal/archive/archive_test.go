package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/types"
)

type fakePutter struct {
	in   *s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, f.err
}

func TestS3Archive_Put(t *testing.T) {
	fp := &fakePutter{}
	a := &S3Archive{client: fp, bucket: "inhouse"}

	key, err := a.Put(context.Background(), "m1", types.GameRecord{ID: "G1", WinningTeam: types.Team2})
	require.NoError(t, err)
	assert.Equal(t, "matches/m1.json", key)
	assert.Equal(t, "inhouse", aws.ToString(fp.in.Bucket))
	assert.Equal(t, "application/json", aws.ToString(fp.in.ContentType))

	var got archived
	require.NoError(t, json.Unmarshal(fp.body, &got))
	assert.Equal(t, "G1", got.Record.ID)
	assert.Equal(t, "m1", got.MatchID)
}

func TestS3Archive_PutError(t *testing.T) {
	a := &S3Archive{client: &fakePutter{err: errors.New("denied")}, bucket: "inhouse"}
	_, err := a.Put(context.Background(), "m1", types.GameRecord{ID: "G1"})
	assert.ErrorContains(t, err, "denied")
}
