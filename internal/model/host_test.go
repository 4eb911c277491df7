package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"registryd/internal/model"
)

func TestHostIsSubordinate(t *testing.T) {
	sub := model.Host{SuperordinateDomain: "example.test"}
	assert.True(t, sub.IsSubordinate())
	assert.False(t, (&model.Host{}).IsSubordinate())
}

func TestComputeLastTransferTime(t *testing.T) {
	created := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	moved := created.AddDate(1, 0, 0)

	tests := []struct {
		name          string
		host          model.Host
		superordinate *model.Domain
		want          time.Time
	}{
		{
			name: "no transfers anywhere",
			host: model.Host{ResourceBase: model.ResourceBase{CreationTime: created}},
			want: time.Time{},
		},
		{
			name: "domain transferred while host subordinate",
			host: model.Host{ResourceBase: model.ResourceBase{CreationTime: created}},
			superordinate: &model.Domain{ResourceBase: model.ResourceBase{
				LastTransferTime: created.AddDate(0, 6, 0),
			}},
			want: created.AddDate(0, 6, 0),
		},
		{
			name: "domain transfer predates host creation",
			host: model.Host{ResourceBase: model.ResourceBase{CreationTime: created}},
			superordinate: &model.Domain{ResourceBase: model.ResourceBase{
				LastTransferTime: created.AddDate(0, -6, 0),
			}},
			want: time.Time{},
		},
		{
			name: "domain transfer predates superordinate change",
			host: model.Host{
				ResourceBase:            model.ResourceBase{CreationTime: created},
				LastSuperordinateChange: moved,
			},
			superordinate: &model.Domain{ResourceBase: model.ResourceBase{
				LastTransferTime: moved.AddDate(0, -1, 0),
			}},
			want: time.Time{},
		},
		{
			name: "own transfer time is newer",
			host: model.Host{ResourceBase: model.ResourceBase{
				CreationTime:     created,
				LastTransferTime: created.AddDate(1, 6, 0),
			}},
			superordinate: &model.Domain{ResourceBase: model.ResourceBase{
				LastTransferTime: created.AddDate(0, 6, 0),
			}},
			want: created.AddDate(1, 6, 0),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.host.ComputeLastTransferTime(tc.superordinate))
		})
	}
}
