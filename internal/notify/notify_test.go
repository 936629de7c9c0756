package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"wasteportal-backend/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func rejected() *models.HostelWasteSubmission {
	sub := &models.HostelWasteSubmission{ID: 4}
	sub.Reference = "HOSTEL-20240301-abcd1234"
	sub.FacilityID = 2
	sub.Date = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	sub.Status = models.StatusRejected
	sub.RejectReason = "photo unreadable"
	return sub
}

func TestReviewEvent(t *testing.T) {
	ev := ReviewEvent(rejected(), "pho1")

	assert.Equal(t, "submission.rejected", ev.Type)
	assert.Equal(t, models.KindHostelWaste, ev.Kind)
	assert.Equal(t, uint(4), ev.SubmissionID)
	assert.Equal(t, "2024-03-01", ev.Date)
	assert.Equal(t, "photo unreadable", ev.Reason)
	assert.Equal(t, "pho1", ev.Actor)
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	n := NewLogNotifier(zap.New(core))

	require.NoError(t, n.Notify(context.Background(), ReviewEvent(rejected(), "pho1")))

	entries := logs.FilterMessage("review notification").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "HOSTEL-20240301-abcd1234", entries[0].ContextMap()["reference"])
}

type fakePublisher struct {
	in  *awssns.PublishInput
	err error
}

func (f *fakePublisher) Publish(_ context.Context, in *awssns.PublishInput, _ ...func(*awssns.Options)) (*awssns.PublishOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &awssns.PublishOutput{MessageId: aws.String("m-1")}, nil
}

func TestSNSNotifierPublishesEvent(t *testing.T) {
	pub := &fakePublisher{}
	n := &SNSNotifier{client: pub, topicARN: "arn:aws:sns:ap-south-1:1:waste", logger: zap.NewNop()}

	require.NoError(t, n.Notify(context.Background(), ReviewEvent(rejected(), "pho1")))

	require.NotNil(t, pub.in)
	assert.Equal(t, "arn:aws:sns:ap-south-1:1:waste", aws.ToString(pub.in.TopicArn))
	assert.Equal(t, "HOSTEL-20240301-abcd1234 rejected", aws.ToString(pub.in.Subject))

	var ev Event
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(pub.in.Message)), &ev))
	assert.Equal(t, models.StatusRejected, ev.Status)
	assert.Equal(t, "submission.rejected", aws.ToString(pub.in.MessageAttributes["type"].StringValue))
}

func TestSendLogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logger := zap.New(core)
	n := &SNSNotifier{client: &fakePublisher{err: errors.New("throttled")}, topicARN: "arn", logger: logger}

	Send(context.Background(), n, logger, ReviewEvent(rejected(), "pho1"))

	assert.Equal(t, 1, logs.FilterMessage("notification failed").Len())
}
